package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicechat/internal/domain"
	"voicechat/internal/infra"
)

const DefaultChatModel = "llama-3.1-8b-instant"

// ChatClient talks to an OpenAI-compatible /chat/completions endpoint
// (Groq by default).
type ChatClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewChatClient(apiKey, baseURL, model string) *ChatClient {
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *ChatClient) WithRetry(cfg infra.RetryConfig) *ChatClient {
	c.retry = cfg
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []domain.Turn `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	N           int           `json:"n,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("chat: %w", domain.ErrUnavailable)
	}

	bodyBytes, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		N:           req.Candidates,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var result chatResponse
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return infra.CheckStatus("chat", resp.StatusCode, respBody)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return "", infra.RateLimited(retryErr)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty response from chat API")
	}

	return result.Choices[0].Message.Content, nil
}
