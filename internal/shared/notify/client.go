// Package notify posts quote event cards to an outbound webhook (typically an email relay).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDisabled is returned when no webhook URL is configured.
var ErrDisabled = errors.New("notify webhook is not configured")

// BaseResponse is the optional JSON acknowledgement of the receiver. A non-zero code is a failure.
type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WebhookClient posts JSON cards to one endpoint.
type WebhookClient struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewWebhookClient creates a client. A zero timeout means 30 seconds.
func NewWebhookClient(url, secret string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookClient{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *WebhookClient) Enabled() bool {
	return c != nil && c.url != ""
}

// Send posts one card.
func (c *WebhookClient) Send(ctx context.Context, card Card) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.doRequest(ctx, card)
}

func (c *WebhookClient) doRequest(ctx context.Context, body interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	var base BaseResponse
	if err := json.Unmarshal(respBody, &base); err != nil {
		// plain-text acknowledgements are fine
		return nil
	}
	if base.Code != 0 {
		return fmt.Errorf("webhook error[%d]: %s", base.Code, base.Msg)
	}
	return nil
}
