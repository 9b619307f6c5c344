package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/security"
)

// Captcha verifies challenge tokens with the captcha service.
type Captcha struct {
	url     string
	siteKey string
	client  *http.Client
}

// NewCaptcha creates a verifier. Both url and siteKey are required.
func NewCaptcha(url, siteKey string, timeout time.Duration) (*Captcha, error) {
	if url == "" || siteKey == "" {
		return nil, ErrCaptchaMisconfigured
	}
	if err := security.ValidateHTTPURL(url); err != nil {
		return nil, fmt.Errorf("invalid captcha URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Captcha{url: url, siteKey: siteKey, client: &http.Client{Timeout: timeout}}, nil
}

// SiteKey returns the public key the challenge widget is rendered with.
func (c *Captcha) SiteKey() string {
	return c.siteKey
}

// Verify posts {token, siteKey} and reports whether the service answered
// true (as JSON boolean or string).
func (c *Captcha) Verify(ctx context.Context, token string) (bool, error) {
	body, err := json.Marshal(struct {
		Token   string `json:"token"`
		SiteKey string `json:"siteKey"`
	}{token, c.siteKey})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("%w: HTTP %d", ErrCaptchaUnavailable, resp.StatusCode)
	}

	answer, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	switch strings.TrimSpace(string(answer)) {
	case "true", `"true"`:
		return true, nil
	}
	return false, nil
}
