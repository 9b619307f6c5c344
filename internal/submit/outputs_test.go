package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/config"
	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/enquirywitch/enquirywitch/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allowLocal lets outputs reach httptest servers on 127.0.0.1.
func allowLocal(t *testing.T) {
	t.Helper()
	security.AllowPrivateEndpoints = true
	t.Cleanup(func() { security.AllowPrivateEndpoints = false })
}

func testSubmission() *Submission {
	var data form.Data
	data.Set("name", "Jazz")
	data.Set("favourite_colour", "<teal>")
	return &Submission{
		ID:       "sub-1",
		Created:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Params:   map[string]any{"sendTo": "desk@example.com", "subject": "Hello\r\nBcc: x@y.z"},
		FormData: data,
		Payload:  []byte(`{"formData":[{"name":"Jazz"}],"sendTo":"desk@example.com"}`),
	}
}

func TestNewWebhookOutputRejectsBadURLs(t *testing.T) {
	_, err := NewWebhookOutput("", 0)
	assert.Error(t, err)

	_, err = NewWebhookOutput("http://127.0.0.1:9000/hook", 0)
	assert.ErrorContains(t, err, "loopback")

	_, err = NewWebhookOutput("ftp://hooks.example.com", 0)
	assert.ErrorContains(t, err, "scheme")

	w, err := NewWebhookOutput("https://hooks.example.com/enquiry", 0)
	require.NoError(t, err)
	assert.Equal(t, "webhook", w.Name())
	assert.Equal(t, "https://hooks.example.com/enquiry", w.URL())
}

func TestWebhookOutputSend(t *testing.T) {
	allowLocal(t)

	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, err := NewWebhookOutput(srv.URL, time.Second)
	require.NoError(t, err)

	sub := testSubmission()
	require.NoError(t, w.Send(context.Background(), sub))
	assert.Equal(t, sub.Payload, gotBody)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "sub-1", gotHeader.Get("X-Submission-Id"))
}

func TestWebhookOutputHTTPError(t *testing.T) {
	allowLocal(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w, err := NewWebhookOutput(srv.URL, time.Second)
	require.NoError(t, err)

	err = w.Send(context.Background(), testSubmission())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "nope", httpErr.Body)
	assert.True(t, httpErr.IsRetryable())
}

func TestCaptchaVerify(t *testing.T) {
	allowLocal(t)

	tests := []struct {
		name    string
		status  int
		answer  string
		want    bool
		wantErr bool
	}{
		{"json true", http.StatusOK, "true", true, false},
		{"string true", http.StatusOK, `"true"`, true, false},
		{"false", http.StatusOK, "false", false, false},
		{"server error", http.StatusBadGateway, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Token   string `json:"token"`
				SiteKey string `json:"siteKey"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.answer)
			}))
			defer srv.Close()

			c, err := NewCaptcha(srv.URL, "site-key", time.Second)
			require.NoError(t, err)

			ok, err := c.Verify(context.Background(), "tok")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCaptchaUnavailable)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "tok", got.Token)
			assert.Equal(t, "site-key", got.SiteKey)
		})
	}
}

func TestNewCaptchaMisconfigured(t *testing.T) {
	_, err := NewCaptcha("", "key", 0)
	assert.ErrorIs(t, err, ErrCaptchaMisconfigured)
	_, err = NewCaptcha("https://captcha.example.com", "", 0)
	assert.ErrorIs(t, err, ErrCaptchaMisconfigured)
}

func TestNewEmailOutput(t *testing.T) {
	_, err := NewEmailOutput("", &config.SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	_, err = NewEmailOutput("desk@example.com", nil)
	assert.Error(t, err)

	e, err := NewEmailOutput("desk@example.com", &config.SMTPConfig{Host: "smtp.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "email", e.Name())
	assert.Equal(t, "desk@example.com", e.To())
	assert.Equal(t, "587", e.smtpPort)
	assert.Equal(t, "desk@example.com", e.from)
}

func TestEmailOutputSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}
	t.Cleanup(func() { sendMail = orig })

	e, err := NewEmailOutput("desk@example.com", &config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 2525,
		From: "witch@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, e.Send(context.Background(), testSubmission()))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "witch@example.com", gotFrom)
	assert.Equal(t, []string{"desk@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Hello  Bcc: x@y.z\r\n")
	assert.NotContains(t, gotMsg, "\r\nBcc:")
	assert.Contains(t, gotMsg, "NAME: Jazz\n")
	assert.Contains(t, gotMsg, "FAVOURITE COLOUR: &lt;teal&gt;\n")
	assert.True(t, strings.HasSuffix(gotMsg, `"sendTo":"desk@example.com"}`+"\n"))
}

func TestEmailOutputSendError(t *testing.T) {
	orig := sendMail
	sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	t.Cleanup(func() { sendMail = orig })

	e, err := NewEmailOutput("desk@example.com", &config.SMTPConfig{Host: "smtp.example.com"})
	require.NoError(t, err)

	err = e.Send(context.Background(), testSubmission())
	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.True(t, deliveryErr.Retryable)
}

func TestEmailOutputCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := NewEmailOutput("desk@example.com", &config.SMTPConfig{Host: "smtp.example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Send(ctx, testSubmission()), context.Canceled)
}

func TestDefaultSubject(t *testing.T) {
	sub := testSubmission()
	sub.Params = map[string]any{"sendTo": "desk@example.com"}
	assert.Equal(t, "New enquiry sub-1", subject(sub))
}
