package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/config"
)

func TestOpenAICompleteSendsSystemAndUserMessages(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"SELECT 1"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	completer, err := New(config.AIConfig{
		Provider: config.ProviderOpenAI,
		BaseURL:  server.URL + "/v1/",
		APIKey:   "test-key",
		Model:    "gpt-test",
	}, server.Client())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	text, err := completer.Complete(context.Background(), "be terse", "count rows")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("Complete() = %q", text)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "be terse" {
		t.Fatalf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "count rows" {
		t.Fatalf("user message = %+v", got.Messages[1])
	}
}

func TestOpenAICompleteReportsServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	completer := NewOpenAI(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "k", Model: "m", HTTPClient: server.Client()})
	_, err := completer.Complete(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error = %v", err)
	}
}

func TestOpenAICompleteRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	completer := NewOpenAI(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "k", Model: "m", HTTPClient: server.Client()})
	_, err := completer.Complete(context.Background(), "", "hello")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestAnthropicCompleteReturnsFirstTextBlock(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "anthropic-key" {
			t.Errorf("x-api-key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
			`"content":[{"type":"text","text":"YES"}],"stop_reason":"end_turn",` +
			`"usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer server.Close()

	completer, err := New(config.AIConfig{
		Provider: config.ProviderAnthropic,
		BaseURL:  server.URL + "/v1",
		APIKey:   "anthropic-key",
		Model:    "claude-test",
	}, server.Client())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	text, err := completer.Complete(context.Background(), "answer YES or NO", "chart?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "YES" {
		t.Fatalf("Complete() = %q", text)
	}
	if got.Model != "claude-test" || got.System != "answer YES or NO" {
		t.Fatalf("request = %+v", got)
	}
	if got.MaxTokens != defaultAnthropicMaxTokens {
		t.Fatalf("max_tokens = %d", got.MaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content[0].Text != "chart?" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []config.AIConfig{
		{Provider: config.ProviderOpenAI, Model: "m"},
		{Provider: config.ProviderOpenAI, APIKey: "k"},
		{Provider: "cohere", APIKey: "k", Model: "m"},
	}
	for _, cfg := range tests {
		if _, err := New(cfg, nil); err == nil {
			t.Fatalf("New(%+v) expected error", cfg)
		}
	}
}

func TestCompleterFunc(t *testing.T) {
	var completer Completer = CompleterFunc(func(_ context.Context, system, user string) (string, error) {
		return system + "|" + user, nil
	})
	got, err := completer.Complete(context.Background(), "s", "u")
	if err != nil || got != "s|u" {
		t.Fatalf("Complete() = %q, %v", got, err)
	}
}
