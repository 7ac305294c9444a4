package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/romanzh1/mood-diary/internal/models"
	"golang.org/x/oauth2"
)

var ErrNotConfigured = errors.New("reminder webhook URL is not configured")

type Client struct {
	url        string
	variant    Variant
	httpClient *http.Client
}

// DefaultTimeout bounds a single dispatch.
const DefaultTimeout = 30 * time.Second

// NewClient builds a webhook client. A non-empty token is sent as a bearer token,
// which is how private Yandex Cloud Functions are invoked.
func NewClient(url string, variant Variant, token string) *Client {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		httpClient = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
		}
	}

	return &Client{
		url:        url,
		variant:    variant,
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c.url != ""
}

func (c *Client) Dispatch(ctx context.Context, reminder models.ScheduledReminder) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	switch c.variant {
	case VariantYandex:
		return c.post(ctx, YandexPayload{
			ChatID:   reminder.ChatID,
			RemindAt: reminder.At.Format(time.RFC3339),
			Text:     reminder.Text,
		}, true)
	default:
		// Apps Script answers with a redirect we never read, like a no-cors fetch.
		return c.post(ctx, GASPayload{
			ChatID: reminder.ChatID,
			Text:   reminder.Text,
			Time:   reminder.At.UnixMilli(),
		}, false)
	}
}

func (c *Client) post(ctx context.Context, payload any, checkStatus bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload (variant: %s): %w", c.variant, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request (url: %s): %w", c.url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request (url: %s): %w", c.url, err)
	}
	defer resp.Body.Close()

	if checkStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request failed (url: %s, status: %d): %s", c.url, resp.StatusCode, string(respBody))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
