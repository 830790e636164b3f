package pushover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.pushover.net/1/messages.json"

// Client sends operator alerts when a voice turn fails. Without a token and
// user key it is a no-op.
type Client struct {
	token      string
	userKey    string
	title      string
	endpoint   string
	httpClient *http.Client
}

func NewClient(token, userKey string) *Client {
	return NewClientWithURL(token, userKey, defaultEndpoint)
}

func NewClientWithURL(token, userKey, endpoint string) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		title:      "Voice Chat",
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.token != "" && c.userKey != ""
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if !c.Enabled() {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.endpoint,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}

	return nil
}
