package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/provider"
)

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing APIKey")
	}
}

func TestProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "print(1)"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	maxTokens := 256
	resp, err := p.Complete(context.Background(), &provider.Request{
		Model: "gpt-4o-mini",
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "rules"},
			{Role: provider.RoleUser, Content: "q"},
			{Role: provider.RoleAssistant, Content: "a"},
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "print(1)" || resp.Usage.TotalTokens != 10 || resp.FinishReason != "stop" {
		t.Errorf("response = %+v", resp)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	if role := msgs[2].(map[string]any)["role"]; role != "assistant" {
		t.Errorf("third role = %v", role)
	}
	if got["max_completion_tokens"] != 256.0 {
		t.Errorf("max_completion_tokens = %v", got["max_completion_tokens"])
	}
}

func TestProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   api.ErrorType
	}{
		{http.StatusTooManyRequests, api.ErrorTypeTooManyRequests},
		{http.StatusUnauthorized, api.ErrorTypeOracleError},
		{http.StatusInternalServerError, api.ErrorTypeOracleError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "x"}}`))
			}))
			defer srv.Close()

			p, _ := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
			_, err := p.Complete(context.Background(), &provider.Request{
				Model: "m", Messages: []provider.Message{{Role: "user", Content: "q"}},
			})
			apiErr, ok := err.(*api.APIError)
			if !ok {
				t.Fatalf("expected *api.APIError, got %T (%v)", err, err)
			}
			if apiErr.Type != tt.want {
				t.Errorf("type = %q, want %q", apiErr.Type, tt.want)
			}
		})
	}
}
