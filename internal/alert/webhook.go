package alert

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookAlerter posts alerts as JSON to an operator webhook endpoint. One
// shot, no retries: a lost alert is acceptable, a blocked DLQ consumer is not.
type WebhookAlerter struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookAlerter(endpoint string) (*WebhookAlerter, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookAlerterWithClient(endpoint, client)
}

func NewWebhookAlerterWithClient(endpoint string, client *resty.Client) (*WebhookAlerter, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookAlerter{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (w *WebhookAlerter) Alert(ctx context.Context, a Alert) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("alerter is not initialized")
	}

	response, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a).
		Post(w.endpoint)
	if err != nil {
		return fmt.Errorf("alert webhook request failed: %w", err)
	}
	if response == nil {
		return fmt.Errorf("alert webhook returned empty response")
	}

	if response.IsError() {
		return fmt.Errorf("alert webhook returned status %d", response.StatusCode())
	}

	return nil
}
