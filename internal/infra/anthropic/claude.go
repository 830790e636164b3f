package anthropic

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

type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, "https://api.anthropic.com/v1")
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *ClaudeClient) WithRetry(cfg infra.RetryConfig) *ClaudeClient {
	c.retry = cfg
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends the dialogue to the Messages API. System turns are lifted
// into the top-level system field since the API rejects them inline.
// Candidates is ignored; Claude always returns a single completion.
func (c *ClaudeClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("claude: %w", domain.ErrUnavailable)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	dialogue := req.Dialogue()
	messages := make([]message, 0, len(dialogue))
	for _, turn := range dialogue {
		messages = append(messages, message{Role: string(turn.Role), Content: turn.Content})
	}

	bodyBytes, err := json.Marshal(request{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      req.System(),
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var result response
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return infra.CheckStatus("claude", resp.StatusCode, respBody)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return "", infra.RateLimited(retryErr)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("empty response from claude")
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return sb.String(), nil
}
