package submit

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNoOutputs            = errors.New("no form endpoint configured: set form.post_url or form.backup_email, or enable preview")
	ErrCaptchaMisconfigured = errors.New("captcha is enabled but its URL and site key are not both set")
	ErrCaptchaUnavailable   = errors.New("captcha verification failed")
)

// DeliveryError wraps errors with output context
type DeliveryError struct {
	Output    string // Output name (e.g., "webhook")
	Operation string // Operation that failed (e.g., "send")
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("output %q %s failed: %v", e.Output, e.Operation, e.Err)
	}
	return fmt.Sprintf("output %q: %v", e.Output, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	Output     string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("output %q: HTTP %d %s: %s", e.Output, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("output %q: HTTP %d %s", e.Output, e.StatusCode, e.Status)
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// CircuitOpenError indicates the circuit breaker is open
type CircuitOpenError struct {
	Output string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("output %q: circuit breaker open, service temporarily unavailable", e.Output)
}

// shouldRetry determines if an error should be retried
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}

	return isRetryableError(err)
}

// isRetryableError checks if an error is transient
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"try again",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// UserFriendlyMessage returns a message that can be shown to the reader
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return "The message service is temporarily unavailable. Please try again later."
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return "Too many messages. Please wait a moment and try again."
		case httpErr.StatusCode >= 500:
			return "The message service had a problem. Please try again later."
		default:
			return fmt.Sprintf("Sending failed (HTTP %d).", httpErr.StatusCode)
		}
	}

	if errors.Is(err, ErrCaptchaUnavailable) {
		return "There has been an error verifying your CAPTCHA. The service may be down. Please try again."
	}

	return "Error sending email - email was not sent"
}
