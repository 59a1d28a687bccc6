package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc, attempts int) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(Options{
		APIKey:  "sk-test-key-123456",
		BaseURL: srv.URL + "/chat/completions",
		Policy:  fastPolicy(attempts),
	})
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultOpenAIModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func writeAPIError(w http.ResponseWriter, status int, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "request failed", "type": errType, "code": errType},
	})
}

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                            DefaultOpenAIBaseURL,
		"  ":                                          DefaultOpenAIBaseURL,
		"https://api.openai.com/v1":                   "https://api.openai.com/v1",
		"https://api.openai.com/v1/":                  "https://api.openai.com/v1",
		"https://api.openai.com/v1/chat/completions":  "https://api.openai.com/v1",
		"https://proxy.local/v1/completions":          "https://proxy.local/v1",
		"https://proxy.local/v1/chat":                 "https://proxy.local/v1",
		"https://proxy.local/v1/chat/completions//  ": "https://proxy.local/v1/chat/completions",
	}
	for in, want := range tests {
		if got := NormalizeBaseURL(in); got != want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranscribe_SendsMultipartUpload(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test-key-123456" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != DefaultTranscriptionModel {
			t.Errorf("expected model %q, got %q", DefaultTranscriptionModel, got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "note.m4a" || string(data) != "audio-bytes" {
			t.Errorf("unexpected file %q with %q", hdr.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"buy milk hashtag todo"}`))
	}, 3)

	text, err := p.Transcribe(context.Background(), models.AudioFile{
		Name:        "note.m4a",
		ContentType: "audio/mp4",
		Data:        []byte("audio-bytes"),
	})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "buy milk hashtag todo" {
		t.Errorf("unexpected transcript %q", text)
	}
}

func TestTranscribe_MissingKey(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(Options{})
	if p.Configured() {
		t.Fatal("expected provider without key to be unconfigured")
	}
	_, err := p.Transcribe(context.Background(), models.AudioFile{Name: "a.mp3"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeAPIError(w, http.StatusBadGateway, "server_error")
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["max_completion_tokens"] != float64(123) {
			t.Errorf("expected max_completion_tokens 123, got %v", body["max_completion_tokens"])
		}
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("expected system and user messages, got %d", len(msgs))
		}
		writeChat(w, "  done  ")
	}, 5)

	got, err := p.Complete(context.Background(), "summarize", "hello", 0.2, 123)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected trimmed content, got %q", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestComplete_QuotaExhaustedNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests, retry.QuotaExhaustedType)
	}, 5)

	_, err := p.Complete(context.Background(), "summarize", "hello", 1, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsQuotaError(err) {
		t.Errorf("expected quota error, got %v", err)
	}
	if IsRateLimitError(err) {
		t.Error("quota exhaustion must not look retryable")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestComplete_RateLimitRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
			return
		}
		writeChat(w, "ok")
	}, 3)

	if _, err := p.Complete(context.Background(), "summarize", "hello", 1, 10); err != nil {
		t.Fatalf("expected success after rate limit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestComplete_UnauthorizedNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusUnauthorized, "invalid_request_error")
	}, 5)

	_, err := p.Complete(context.Background(), "summarize", "hello", 1, 10)
	if !IsUnauthorized(err) {
		t.Errorf("expected unauthorized error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 2 || !strings.Contains(body.Messages[1].Content, "the transcript") {
			t.Errorf("expected transcript in user message, got %+v", body.Messages)
		}
		if body.Temperature != 0.2 {
			t.Errorf("expected temperature 0.2, got %v", body.Temperature)
		}
		writeChat(w, "Title: Weekly Plan\nSummary:\n- one")
	}, 1)

	res, err := p.Summarize(context.Background(), "the transcript", prompts.Defaults().Get(prompts.KeySummarize))
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if res.Kind != SummaryKindPlainText || res.Title() != "Weekly Plan" {
		t.Errorf("unexpected summary %+v (title %q)", res, res.Title())
	}
}

func TestExtractTasks_Malformed(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeChat(w, "sure, here are your tasks!")
	}, 1)

	_, err := p.ExtractTasks(context.Background(), "buy milk", prompts.Defaults().Get(prompts.KeyTasks))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestExtractTasks_EmptyContent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeChat(w, "   ")
	}, 1)

	_, err := p.ExtractTasks(context.Background(), "buy milk", prompts.Defaults().Get(prompts.KeyTasks))
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestProviderRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	p, err := r.GetProvider("openai", ProviderConfig{Options: Options{APIKey: "sk-abc"}})
	if err != nil {
		t.Fatalf("expected openai provider, got %v", err)
	}
	if !p.Configured() {
		t.Error("expected configured provider")
	}

	_, err = r.GetProvider("other", ProviderConfig{})
	var notFound *ErrProviderNotFound
	if !errors.As(err, &notFound) || notFound.Name != "other" {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestComplete_TemperatureByModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model    string
		wantTemp bool
	}{
		{model: "", wantTemp: false},
		{model: "gpt-5-mini", wantTemp: false},
		{model: "o4-mini", wantTemp: false},
		{model: "gpt-4o-mini", wantTemp: true},
	}
	for _, tt := range tests {
		t.Run("model "+tt.model, func(t *testing.T) {
			t.Parallel()

			bodies := make(chan map[string]any, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request: %v", err)
				}
				bodies <- body
				writeChat(w, "ok")
			}))
			t.Cleanup(srv.Close)
			p := NewOpenAIProvider(Options{APIKey: "sk-test-key-123456", BaseURL: srv.URL, Model: tt.model, Policy: fastPolicy(1)})

			if _, err := p.Complete(context.Background(), "summarize", "hello", 0.2, 100); err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			body := <-bodies
			wantModel := tt.model
			if wantModel == "" {
				wantModel = DefaultOpenAIModel
			}
			if body["model"] != wantModel {
				t.Errorf("model = %v, want %s", body["model"], wantModel)
			}
			temp, sent := body["temperature"]
			if sent != tt.wantTemp {
				t.Fatalf("temperature sent = %v (%v), want %v", sent, temp, tt.wantTemp)
			}
			if sent && temp != 0.2 {
				t.Errorf("temperature = %v, want 0.2", temp)
			}
		})
	}
}

func TestAcceptsTemperature(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		DefaultOpenAIModel: false,
		"GPT-5":            false,
		"o1":               false,
		"o3-mini":          false,
		"gpt-4.1-nano":     true,
		"gpt-4o":           true,
		"omni-custom":      true,
	}
	for model, want := range tests {
		if got := AcceptsTemperature(model); got != want {
			t.Errorf("AcceptsTemperature(%q) = %v, want %v", model, got, want)
		}
	}
}
