package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voicechat/internal/domain"
	"voicechat/internal/infra"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// WhisperClient calls an OpenAI-compatible /audio/transcriptions endpoint.
// Groq serves the same API under its own base URL.
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	language   string
	retry      infra.RetryConfig
}

func NewWhisperClient(apiKey, baseURL, model, language string) *WhisperClient {
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		language:   language,
		retry:      infra.DefaultRetryConfig(),
	}
}

func (c *WhisperClient) WithRetry(cfg infra.RetryConfig) *WhisperClient {
	c.retry = cfg
	return c
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("whisper: %w", domain.ErrUnavailable)
	}

	// The body is rebuilt on every attempt, so the stream is drained once.
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var result transcriptionResponse

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("creating form file: %w", err)
		}

		if _, err = part.Write(data); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}

		if err = writer.WriteField("model", c.model); err != nil {
			return fmt.Errorf("writing model field: %w", err)
		}

		if c.language != "" {
			if err = writer.WriteField("language", c.language); err != nil {
				return fmt.Errorf("writing language field: %w", err)
			}
		}

		if err = writer.Close(); err != nil {
			return fmt.Errorf("closing writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return infra.CheckStatus("whisper", resp.StatusCode, respBody)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return "", retryErr
	}

	return result.Text, nil
}
