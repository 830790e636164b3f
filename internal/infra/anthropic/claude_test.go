package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voicechat/internal/domain"
	"voicechat/internal/infra/anthropic"
)

func TestClaudeClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)

		response := map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Looking for a car or a house?"},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("test-key", "claude-test", server.URL)

	text, err := client.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Turn{
			domain.SystemTurn("You are a sales person."),
			domain.UserTurn("hi"),
			domain.AssistantTurn("hello!"),
			domain.UserTurn("what do you sell?"),
		},
		MaxTokens:   500,
		Candidates:  1,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if text != "Looking for a car or a house?" {
		t.Errorf("text: got %q", text)
	}

	if got["system"] != "You are a sales person." {
		t.Errorf("system: got %v", got["system"])
	}

	messages, _ := got["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("messages: got %d, want 3 (system turn lifted out)", len(messages))
	}

	first, _ := messages[0].(map[string]any)
	if first["role"] != "user" {
		t.Errorf("first role: got %v, want user", first["role"])
	}

	if got["max_tokens"] != float64(500) {
		t.Errorf("max_tokens: got %v", got["max_tokens"])
	}
}

func TestClaudeClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"rate_limit_error"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("test-key", "claude-test", server.URL)

	_, err := client.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Turn{domain.UserTurn("hi")},
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestClaudeClient_NoKey(t *testing.T) {
	client := anthropic.NewClaudeClientWithURL("", "", "http://127.0.0.1:0")

	_, err := client.Complete(context.Background(), domain.CompletionRequest{})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
