package elevenlabs

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

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "UgBBYS2sOqTuMpoF3BR0"
)

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	voiceID    string
	modelID    string
	retry      infra.RetryConfig
}

func NewClient(apiKey, voiceID, modelID string) *Client {
	return NewClientWithURL(apiKey, voiceID, modelID, DefaultBaseURL)
}

func NewClientWithURL(apiKey, voiceID, modelID, baseURL string) *Client {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		voiceID:    voiceID,
		modelID:    modelID,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type request struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MPEG audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w", domain.ErrUnavailable)
	}

	bodyBytes, err := json.Marshal(request{
		Text:    text,
		ModelID: c.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)

	var audio []byte
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("xi-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return infra.CheckStatus("elevenlabs", resp.StatusCode, respBody)
		}

		audio, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return audio, nil
}
