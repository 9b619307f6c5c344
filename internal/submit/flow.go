package submit

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/config"
	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/enquirywitch/enquirywitch/internal/markup"
	"github.com/enquirywitch/enquirywitch/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messages shown in place of the story.
const (
	SpamMessage          = `<h3>Spam detected</h3><p>Unfortunately we have identified this message as spam so we are not able to send this email. If this is an error, please try again.</p>`
	CaptchaFailedMessage = `<h3>Spam detected</h3><p>You have failed the CAPTCHA. Unfortunately we have determined your message is spam, if this is not the case please try again.</p>`
	captchaPrompt        = `<p>Please fill in the captcha below in order to send the message and to prove you are not spam.</p><div class="h-captcha" data-callback="validateToken" data-sitekey="%s"></div><script src="https://hcaptcha.com/1/api.js" async defer></script>`
)

// Verdict is the outcome of a submit.
type Verdict string

const (
	VerdictPreview Verdict = "preview" // nothing sent, navigate to the target
	VerdictSent    Verdict = "sent"
	VerdictCaptcha Verdict = "captcha" // reader must solve a captcha first
	VerdictSpam    Verdict = "spam"
	VerdictFailed  Verdict = "failed"
)

// Archive records delivery outcomes.
type Archive interface {
	SaveSubmission(ctx context.Context, s store.Submission) error
}

// Request is a reader's submit click.
type Request struct {
	Data         string // data-submit attribute
	Target       string // passage to show after sending
	FormData     form.Data
	Started      time.Time // when the reader started the story
	Honeypot     string
	CaptchaToken string
	Options      markup.Options
}

// Result tells the host what to show next.
type Result struct {
	Verdict Verdict `json:"verdict"`
	ID      string  `json:"id,omitempty"`
	Target  string  `json:"target,omitempty"`
	Output  string  `json:"output,omitempty"`
	SiteKey string  `json:"siteKey,omitempty"`
	HTML    string  `json:"html,omitempty"`
	Message string  `json:"message,omitempty"`

	// Err is the delivery or captcha error behind VerdictFailed.
	Err error `json:"-"`
	// ParamErr reports submit syntax problems that did not stop the submit.
	ParamErr error `json:"-"`
}

// Flow runs submissions.
type Flow struct {
	delivery   *Delivery
	captchaOn  bool
	captcha    *Captcha
	captchaErr error
	preview    bool
	minFill    time.Duration
	archive    Archive
	log        *zap.Logger
	now        func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithArchive records every delivery in a.
func WithArchive(a Archive) FlowOption {
	return func(f *Flow) { f.archive = a }
}

// WithCaptcha asks readers who fail the spam check to solve a captcha. A nil
// verifier means captcha is enabled but misconfigured.
func WithCaptcha(c *Captcha) FlowOption {
	return func(f *Flow) {
		f.captchaOn = true
		f.captcha = c
		if c == nil {
			f.captchaErr = ErrCaptchaMisconfigured
		}
	}
}

// WithPreview switches sending off.
func WithPreview(on bool) FlowOption {
	return func(f *Flow) { f.preview = on }
}

// WithMinFillTime changes the spam check time limit.
func WithMinFillTime(d time.Duration) FlowOption {
	return func(f *Flow) { f.minFill = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) FlowOption {
	return func(f *Flow) { f.log = log }
}

// NewFlow creates a flow delivering through d.
func NewFlow(d *Delivery, opts ...FlowOption) *Flow {
	f := &Flow{
		delivery: d,
		minFill:  DefaultMinFillTime,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromConfig builds the outputs and the flow described by the form and
// delivery configuration.
func FromConfig(fc config.FormConfig, dc config.DeliveryConfig, log *zap.Logger, opts ...FlowOption) (*Flow, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var outputs []Output
	if fc.PostURL != "" {
		w, err := NewWebhookOutput(fc.PostURL, dc.GetTimeout())
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, w)
	}
	if fc.BackupEmail != "" {
		e, err := NewEmailOutput(fc.BackupEmail, dc.SMTP)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, e)
	}

	d := NewDelivery(RetryConfig{
		MaxRetries: dc.GetRetryMaxRetries(),
		BaseDelay:  dc.GetRetryBaseDelay(),
		MaxDelay:   dc.GetRetryMaxDelay(),
		Multiplier: 2.0,
	}, log, outputs...)
	if fc.PostURL != "" {
		d.Protect("webhook", CircuitBreakerConfig{
			FailureThreshold: dc.GetCircuitFailureThreshold(),
			SuccessThreshold: dc.GetCircuitSuccessThreshold(),
			Timeout:          dc.GetCircuitTimeout(),
			FailureWindow:    time.Minute,
		})
	}

	base := []FlowOption{
		WithLogger(log),
		WithPreview(fc.EnablePreview),
		WithMinFillTime(fc.GetMinFillTime()),
	}
	if fc.IsCaptchaEnabled() {
		c, err := NewCaptcha(fc.Captcha.URL, fc.Captcha.SiteKey, dc.GetTimeout())
		if err != nil {
			log.Warn("Captcha disabled by configuration error", zap.Error(err))
		}
		base = append(base, WithCaptcha(c))
	}
	return NewFlow(d, append(base, opts...)...), nil
}

// Delivery returns the underlying delivery.
func (f *Flow) Delivery() *Delivery {
	return f.delivery
}

// Submit screens and sends one enquiry. The returned error is reserved for
// configuration problems; delivery failures are reported as VerdictFailed.
func (f *Flow) Submit(ctx context.Context, req Request) (*Result, error) {
	params, perr := ParseParams(req.Data)
	if perr != nil {
		f.log.Warn("Submit syntax problem", zap.String("data", req.Data), zap.Error(perr))
	}
	res := &Result{Target: req.Target, ParamErr: perr}

	if f.preview {
		res.Verdict = VerdictPreview
		return res, nil
	}
	if f.delivery == nil || len(f.delivery.Outputs()) == 0 {
		return nil, ErrNoOutputs
	}

	if !req.Options.OverrideSpamFilters && !Passes(req.Started, f.now(), req.Honeypot, f.minFill) {
		switch {
		case !f.captchaOn:
			res.Verdict = VerdictSpam
			res.HTML = SpamMessage
			return res, nil
		case f.captcha == nil:
			return nil, f.captchaErr
		case req.CaptchaToken == "":
			res.Verdict = VerdictCaptcha
			res.SiteKey = f.captcha.SiteKey()
			res.HTML = captchaHTML(f.captcha.SiteKey())
			return res, nil
		}

		ok, err := f.captcha.Verify(ctx, req.CaptchaToken)
		if err != nil {
			res.Verdict = VerdictFailed
			res.Err = err
			res.Message = UserFriendlyMessage(err)
			return res, nil
		}
		if !ok {
			res.Verdict = VerdictSpam
			res.HTML = CaptchaFailedMessage
			return res, nil
		}
	}

	return f.send(ctx, params, req, res), nil
}

func (f *Flow) send(ctx context.Context, params map[string]any, req Request, res *Result) *Result {
	res.ID = uuid.NewString()

	payload, err := EncodePayload(params, req.FormData)
	if err != nil {
		res.Verdict = VerdictFailed
		res.Err = err
		res.Message = UserFriendlyMessage(err)
		return res
	}

	sub := &Submission{
		ID:       res.ID,
		Created:  f.now(),
		Params:   params,
		FormData: req.FormData,
		Payload:  payload,
	}
	output, err := f.delivery.Deliver(ctx, sub)

	rec := store.Submission{
		ID:      sub.ID,
		Created: sub.Created,
		Status:  store.StatusSent,
		Output:  output,
		Payload: payload,
	}
	if err != nil {
		rec.Status = store.StatusFailed
		rec.Error = err.Error()
		res.Verdict = VerdictFailed
		res.Err = err
		res.Message = UserFriendlyMessage(err)
	} else {
		res.Verdict = VerdictSent
		res.Output = output
	}

	if f.archive != nil {
		if aerr := f.archive.SaveSubmission(context.WithoutCancel(ctx), rec); aerr != nil {
			f.log.Error("Unable to archive submission", zap.String("id", sub.ID), zap.Error(aerr))
		}
	}
	return res
}

func captchaHTML(siteKey string) string {
	return fmt.Sprintf(captchaPrompt, html.EscapeString(siteKey))
}
