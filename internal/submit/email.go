package submit

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/enquirywitch/enquirywitch/internal/config"
	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/enquirywitch/enquirywitch/internal/markup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// sendMail is replaced in tests.
var sendMail = smtp.SendMail

// EmailOutput mails the enquiry to the backup address.
type EmailOutput struct {
	to       string
	from     string
	smtpHost string
	smtpPort string
	username string
	password string
}

// NewEmailOutput creates an email output sending to "to" through the
// configured SMTP server.
func NewEmailOutput(to string, cfg *config.SMTPConfig) (*EmailOutput, error) {
	if to == "" {
		return nil, fmt.Errorf("email recipient (to) is required")
	}
	if cfg == nil || cfg.GetHost() == "" {
		return nil, fmt.Errorf("SMTP host is required for backup email")
	}

	from := cfg.From
	if from == "" {
		from = to
	}

	return &EmailOutput{
		to:       to,
		from:     from,
		smtpHost: cfg.GetHost(),
		smtpPort: strconv.Itoa(cfg.GetPort()),
		username: cfg.GetUser(),
		password: cfg.GetPassword(),
	}, nil
}

// Name returns "email".
func (e *EmailOutput) Name() string {
	return "email"
}

// Send delivers the enquiry as a plain text email.
func (e *EmailOutput) Send(ctx context.Context, sub *Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", e.to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject(sub)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(emailBody(sub))

	addr := net.JoinHostPort(e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	// smtp.SendMail takes no context; the connection has its own timeouts.
	if err := sendMail(addr, auth, e.from, []string{e.to}, []byte(msg.String())); err != nil {
		return &DeliveryError{Output: e.Name(), Operation: "send", Err: err, Retryable: isRetryableError(err)}
	}
	return nil
}

// Close is a no-op for email output.
func (e *EmailOutput) Close() error {
	return nil
}

// To returns the configured recipient address.
func (e *EmailOutput) To() string {
	return e.to
}

func subject(sub *Submission) string {
	if s, ok := sub.Params["subject"].(string); ok && s != "" {
		return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	}
	return "New enquiry " + sub.ID
}

func emailBody(sub *Submission) string {
	upper := cases.Upper(language.Und)

	var b strings.Builder
	for _, f := range sub.FormData {
		label := upper.String(strings.ReplaceAll(f.Key, "_", " "))
		if f.Key == form.UploadKey {
			if u, ok := f.Value.(*form.Upload); ok {
				fmt.Fprintf(&b, "UPLOAD: %s (%s, %d bytes)\n", u.Name, u.Type, len(u.Data))
			}
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, markup.Escape(f.Value))
	}
	b.WriteString("\n")
	b.Write(sub.Payload)
	b.WriteString("\n")
	return b.String()
}
