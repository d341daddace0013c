package model

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aidoctor/go-pipeline/internal/config"
)

// #endregion imports

// #region chat-client

const (
	completionTimeout = 30 * time.Second
	chatTemperature   = 0.1
	chatMaxTokens     = 1500
)

// ChatClient talks to one OpenAI-compatible chat completion endpoint.
// Both configured backends (e.g. OpenAI and DeepSeek) use this shape.
type ChatClient struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewChatClient builds a client for one configured backend.
func NewChatClient(cfg config.BackendConfig) *ChatClient {
	return &ChatClient{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey(),
		httpClient: &http.Client{Timeout: completionTimeout},
	}
}

// Name returns the backend name used in run metadata.
func (c *ChatClient) Name() string { return c.name }

// Model returns the configured model identifier.
func (c *ChatClient) Model() string { return c.model }

// #endregion chat-client

// #region complete

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a fully-rendered prompt and returns the raw completion
// text. Every failure mode normalizes to *ProviderError; the caller owns
// fence stripping and JSON parsing of the content.
func (c *ChatClient) Complete(ctx context.Context, prompt, system string) (string, error) {
	if c.apiKey == "" {
		return "", providerErr(c.name, "missing API key")
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", providerErr(c.name, "encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", providerErr(c.name, "build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", providerErr(c.name, "request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providerErr(c.name, "read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", providerErr(c.name, "status %s: %s", resp.Status, truncateBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", providerErr(c.name, "decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", providerErr(c.name, "%s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", providerErr(c.name, "empty choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// #endregion complete
