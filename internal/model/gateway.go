package model

// #region imports
import (
	"context"
	"fmt"

	"github.com/aidoctor/go-pipeline/internal/config"
)

// #endregion imports

// #region gateway

// Gateway is the uniform capability surface over heterogeneous backends:
// interchangeable chat completion providers plus one speech-to-text
// provider. It routes by backend name, normalizes all failures to
// *ProviderError, and never retries — fallback policy belongs to the
// workflow engine, not the transport.
type Gateway struct {
	backends    map[string]Completer
	defaultName string
	stt         Transcriber
	sttDisabled bool
}

// NewGateway wires a gateway from settings. Both chat backends are
// registered unless disabled; STT may be absent (transcription then fails
// with a provider error rather than at startup).
func NewGateway(s config.Settings) *Gateway {
	g := &Gateway{backends: make(map[string]Completer)}

	for _, cfg := range []config.BackendConfig{s.Chat.Primary, s.Chat.Secondary} {
		if cfg.Disabled {
			continue
		}
		g.backends[cfg.Name] = NewChatClient(cfg)
	}
	g.defaultName = s.Chat.DefaultBackend().Name

	if !s.STT.Disabled {
		g.stt = NewWhisperClient(s.STT.URL)
	}
	g.sttDisabled = s.STT.Disabled
	return g
}

// NewGatewayWith builds a gateway from injected implementations.
// Used by tests and by callers that construct their own clients.
func NewGatewayWith(backends map[string]Completer, defaultName string, stt Transcriber) *Gateway {
	return &Gateway{backends: backends, defaultName: defaultName, stt: stt}
}

// DefaultBackend returns the name of the default chat backend.
func (g *Gateway) DefaultBackend() string { return g.defaultName }

// ModelName reports the model identifier behind the named backend (the
// default backend when name is empty), falling back to the backend name
// for implementations that don't expose one.
func (g *Gateway) ModelName(backend string) string {
	name := backend
	if name == "" {
		name = g.defaultName
	}
	if c, ok := g.backends[name]; ok {
		if m, ok := c.(interface{ Model() string }); ok && m.Model() != "" {
			return m.Model()
		}
	}
	return name
}

// #endregion gateway

// #region complete

// Complete routes a completion request to the named backend; an empty
// backend selects the default.
func (g *Gateway) CompleteWith(ctx context.Context, backend, prompt, system string) (string, error) {
	name := backend
	if name == "" {
		name = g.defaultName
	}
	c, ok := g.backends[name]
	if !ok {
		return "", providerErr(name, "unknown backend")
	}
	return c.Complete(ctx, prompt, system)
}

// Complete sends a completion request to the default backend.
func (g *Gateway) Complete(ctx context.Context, prompt, system string) (string, error) {
	return g.CompleteWith(ctx, "", prompt, system)
}

// #endregion complete

// #region transcribe

// Transcribe routes to the configured speech-to-text provider.
func (g *Gateway) Transcribe(ctx context.Context, audioRef, language string) (string, error) {
	if g.stt == nil {
		return "", providerErr("whisper", "transcription disabled")
	}
	return g.stt.Transcribe(ctx, audioRef, language)
}

// #endregion transcribe

// #region validate

// Validate checks that at least one chat backend is registered.
func (g *Gateway) Validate() error {
	if len(g.backends) == 0 {
		return fmt.Errorf("no chat backends configured")
	}
	if _, ok := g.backends[g.defaultName]; !ok {
		return fmt.Errorf("default backend %q not registered", g.defaultName)
	}
	return nil
}

// #endregion validate
