package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aidoctor/go-pipeline/internal/config"
)

func chatClientFor(t *testing.T, url string) *ChatClient {
	t.Helper()
	t.Setenv("TEST_CHAT_KEY", "sk-test")
	return NewChatClient(config.BackendConfig{
		Name:      "testchat",
		BaseURL:   url,
		Model:     "test-model",
		APIKeyEnv: "TEST_CHAT_KEY",
	})
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices":[{"message":{"content":"  {\"ok\":true}  "}}]}`))
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	out, err := c.Complete(context.Background(), "user prompt", "system prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header: got %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Fatalf("model: got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("messages: got %+v", gotReq.Messages)
	}
}

func TestCompleteNoSystemMessage(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	if _, err := c.Complete(context.Background(), "prompt", ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("messages: got %+v", gotReq.Messages)
	}
}

func TestCompleteMissingKey(t *testing.T) {
	t.Setenv("TEST_CHAT_KEY", "")
	c := NewChatClient(config.BackendConfig{
		Name:      "testchat",
		BaseURL:   "http://unused",
		Model:     "m",
		APIKeyEnv: "TEST_CHAT_KEY",
	})

	_, err := c.Complete(context.Background(), "prompt", "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Backend != "testchat" {
		t.Fatalf("backend: got %s", pe.Backend)
	}
}

func TestCompleteHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	_, err := c.Complete(context.Background(), "prompt", "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
}

func TestCompleteAPIErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"invalid model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	_, err := c.Complete(context.Background(), "prompt", "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	if _, err := c.Complete(context.Background(), "prompt", ""); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCompleteMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := chatClientFor(t, srv.URL)
	if _, err := c.Complete(context.Background(), "prompt", ""); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestCompleteConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed immediately: connection refused

	c := chatClientFor(t, srv.URL)
	_, err := c.Complete(context.Background(), "prompt", "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotLanguage string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			buf := make([]byte, 32)
			n, _ := f.Read(buf)
			gotFile = buf[:n]
			f.Close()
		}
		w.Write([]byte(`{"text":"me duele la cabeza","language":"es"}`))
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "visit.wav")
	if err := os.WriteFile(audioPath, []byte("RIFFdata"), 0644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	c := NewWhisperClient(srv.URL)
	text, err := c.Transcribe(context.Background(), audioPath, "es")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "me duele la cabeza" {
		t.Fatalf("text: got %q", text)
	}
	if gotLanguage != "es" {
		t.Fatalf("language field: got %q", gotLanguage)
	}
	if string(gotFile) != "RIFFdata" {
		t.Fatalf("file content: got %q", gotFile)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	c := NewWhisperClient("http://unused")
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), "")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
}

func TestTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "visit.wav")
	os.WriteFile(audioPath, []byte("RIFF"), 0644)

	c := NewWhisperClient(srv.URL)
	if _, err := c.Transcribe(context.Background(), audioPath, ""); err == nil {
		t.Fatal("expected error for 503")
	}
}
