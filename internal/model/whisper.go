package model

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// #endregion imports

// #region whisper-client

const transcriptionTimeout = 60 * time.Second

// WhisperClient posts audio files to a Whisper transcription service as
// multipart form data.
type WhisperClient struct {
	url        string
	httpClient *http.Client
}

// NewWhisperClient creates a client for the given transcription endpoint.
func NewWhisperClient(url string) *WhisperClient {
	return &WhisperClient{
		url:        url,
		httpClient: &http.Client{Timeout: transcriptionTimeout},
	}
}

// #endregion whisper-client

// #region transcribe

type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe uploads the audio file at audioRef and returns transcribed
// text. The caller owns the file's lifecycle (deletion after use).
func (c *WhisperClient) Transcribe(ctx context.Context, audioRef, language string) (string, error) {
	audioData, err := os.ReadFile(audioRef)
	if err != nil {
		return "", providerErr("whisper", "read audio %s: %w", audioRef, err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioRef))
	if err != nil {
		return "", providerErr("whisper", "form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", providerErr("whisper", "write form: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", providerErr("whisper", "language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", providerErr("whisper", "close form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", providerErr("whisper", "build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", providerErr("whisper", "request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", providerErr("whisper", "status %s: %s", resp.Status, truncateBody(respBody))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", providerErr("whisper", "decode response: %w", err)
	}
	return result.Text, nil
}

// #endregion transcribe
