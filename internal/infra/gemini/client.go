package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"voicechat/internal/domain"
	"voicechat/internal/infra"
)

const DefaultModel = "gemini-2.0-flash"

// Client completes chats through the Gemini API.
type Client struct {
	client     *genai.Client
	httpClient *http.Client
	model      string
	retry      infra.RetryConfig
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	return NewClientWithURL(ctx, apiKey, model, "")
}

// NewClientWithURL points the SDK at baseURL instead of the public endpoint.
// An empty key yields a client whose Complete reports ErrUnavailable.
func NewClientWithURL(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// WithTimeout bounds each HTTP attempt the SDK makes.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("gemini: %w", domain.ErrUnavailable)
	}

	contents := toContents(req.Dialogue())
	config := generationConfig(req)

	var resp *genai.GenerateContentResponse
	err := infra.WithRetry(ctx, c.retry, func() error {
		var err error
		resp, err = c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			if code, ok := apiStatus(err); ok && (code == http.StatusTooManyRequests || !infra.IsRetryableHTTPStatus(code)) {
				return infra.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if isRateLimited(err) {
			return "", fmt.Errorf("%w: generateContent: %w", domain.ErrRateLimited, err)
		}
		return "", fmt.Errorf("generateContent: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	return resp.Text(), nil
}

func generationConfig(req domain.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: ptrFloat(float32(req.Temperature)),
	}
	if system := req.System(); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Candidates > 0 {
		cfg.CandidateCount = int32(req.Candidates)
	}
	return cfg
}

func toContents(turns []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}

func isRateLimited(err error) bool {
	code, ok := apiStatus(err)
	return ok && code == http.StatusTooManyRequests
}

// apiStatus extracts the HTTP status the SDK attached to err.
func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func ptrFloat(f float32) *float32 { return &f }
