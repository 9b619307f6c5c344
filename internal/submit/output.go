package submit

import (
	"context"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/form"
)

// Submission is one enquiry on its way to an output.
type Submission struct {
	ID       string
	Created  time.Time
	Params   map[string]any
	FormData form.Data
	Payload  []byte // escaped JSON body, see EncodePayload
}

// Output is a destination for submissions.
type Output interface {
	// Name returns the output identifier (e.g., "webhook", "email").
	Name() string

	// Send delivers a submission. The context can be used for cancellation
	// and timeouts.
	Send(ctx context.Context, sub *Submission) error

	// Close releases any resources held by the output.
	Close() error
}
