package markup

import (
	"errors"
	"fmt"
)

var (
	ErrNoConverter     = errors.New("markup: markdown converter is required")
	ErrMissingText     = errors.New("missing [text] group")
	ErrMissingLink     = errors.New("missing (link) group")
	ErrMissingVariable = errors.New("missing {variable} group")
	ErrBadParam        = errors.New("malformed submit parameter")
)

// DirectiveError reports a directive that could not be translated. The
// directive text is left in the output unchanged.
type DirectiveError struct {
	Directive string // directive name, e.g. "REDIRECT"
	Offset    int    // byte offset in the text the pass ran over
	Text      string // the matched directive text
	Err       error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s directive at offset %d: %v", e.Directive, e.Offset, e.Err)
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}
