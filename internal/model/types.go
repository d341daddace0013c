package model

// #region imports
import (
	"context"
	"fmt"
)

// #endregion imports

// #region interfaces

// Completer produces a chat completion for a fully-rendered prompt.
// Implementations perform transport only: no retries, no response parsing.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// Transcriber converts an audio file reference into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef, language string) (string, error)
}

// #endregion interfaces

// #region provider-error

// ProviderError is the single failure signal for all backend faults:
// network errors, auth failures, rate limits, and provider-side errors all
// normalize to this type so callers can classify without knowing the backend.
type ProviderError struct {
	Backend string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Backend, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerErr(backend string, format string, args ...any) *ProviderError {
	return &ProviderError{Backend: backend, Err: fmt.Errorf(format, args...)}
}

// #endregion provider-error
