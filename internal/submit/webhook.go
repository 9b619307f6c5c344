package submit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/security"
)

// WebhookOutput posts the payload to the form endpoint.
type WebhookOutput struct {
	url    string
	client *http.Client
}

// NewWebhookOutput creates a webhook output for url. Internal network
// addresses are refused.
func NewWebhookOutput(url string, timeout time.Duration) (*WebhookOutput, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if err := security.ValidateHTTPURL(url); err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookOutput{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name returns "webhook".
func (w *WebhookOutput) Name() string {
	return "webhook"
}

// Send posts the submission payload.
func (w *WebhookOutput) Send(ctx context.Context, sub *Submission) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(sub.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Submission-Id", sub.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Output: w.Name(), Operation: "send", Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{
			Output:     w.Name(),
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return nil
}

// Close is a no-op for the webhook output.
func (w *WebhookOutput) Close() error {
	return nil
}

// URL returns the endpoint.
func (w *WebhookOutput) URL() string {
	return w.url
}
