package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/internal/domain"
	"voicechat/internal/infra"
	"voicechat/internal/infra/openai"
)

func noRetry() infra.RetryConfig {
	return infra.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestWhisperClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "myFile.wav", header.Filename)
		assert.Equal(t, "RIFF clip", string(data))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " hello "})
	}))
	defer server.Close()

	client := openai.NewWhisperClient("test-key", server.URL, "whisper-large-v3", "en")

	text, err := client.Transcribe(context.Background(), bytes.NewReader([]byte("RIFF clip")), "myFile.wav")
	require.NoError(t, err)
	assert.Equal(t, " hello ", text)
}

func TestWhisperClient_NoKey(t *testing.T) {
	client := openai.NewWhisperClient("", "", "", "")

	_, err := client.Transcribe(context.Background(), bytes.NewReader([]byte("x")), "a.wav")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestWhisperClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad audio"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := openai.NewWhisperClient("k", server.URL, "", "").WithRetry(noRetry())

	_, err := client.Transcribe(context.Background(), bytes.NewReader([]byte("x")), "a.wav")

	var statusErr *infra.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestChatClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Nice to meet you!"}},
			},
		})
	}))
	defer server.Close()

	client := openai.NewChatClient("test-key", server.URL, "")

	text, err := client.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Turn{
			domain.SystemTurn("persona"),
			domain.UserTurn("hello"),
		},
		MaxTokens:   500,
		Candidates:  1,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Nice to meet you!", text)
	assert.Equal(t, openai.DefaultChatModel, got["model"])
	assert.EqualValues(t, 500, got["max_tokens"])
	assert.EqualValues(t, 1, got["n"])
	assert.InDelta(t, 0.7, got["temperature"], 1e-9)

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": "persona"}, messages[0])
}

func TestChatClient_RateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := openai.NewChatClient("k", server.URL, "")

	_, err := client.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.Turn{domain.UserTurn("hi")}})

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1, calls, "rate limits are not retried")
}

func TestChatClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := openai.NewChatClient("k", server.URL, "").WithRetry(noRetry())

	_, err := client.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.Turn{domain.UserTurn("hi")}})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
}

func TestChatClient_NoKey(t *testing.T) {
	_, err := openai.NewChatClient("", "", "").Complete(context.Background(), domain.CompletionRequest{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
