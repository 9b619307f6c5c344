// Package submit turns a reader's submit click into a delivered enquiry:
// parameter parsing, spam screening, captcha, payload encoding, delivery
// with retry, and archiving.
package submit

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ParseParams decodes the data-submit attribute of a submit link. Params are
// separated by ";". A lone param without ":" names the recipient; "k:v" sets
// k; a bare word is a flag set to true. A param with more than one ":" keeps
// its first two pieces and is reported in the returned error.
func ParseParams(data string) (map[string]any, error) {
	parts := strings.Split(data, ";")
	if len(parts) == 1 && !strings.Contains(parts[0], ":") {
		return map[string]any{"sendTo": parts[0]}, nil
	}

	var errs error
	params := make(map[string]any, len(parts))
	for _, param := range parts {
		if !strings.Contains(param, ":") {
			params[param] = true
			continue
		}
		kv := strings.Split(param, ":")
		if len(kv) > 2 {
			errs = multierr.Append(errs, fmt.Errorf("submit syntax has too many ':' in param %q", param))
		}
		params[kv[0]] = kv[1]
	}
	return params, errs
}

// DefaultMinFillTime is how long a human needs at least to reach a submit.
const DefaultMinFillTime = 10 * time.Second

// Passes is the spam check: the honeypot field must be empty and the reader
// must have spent at least minFill since starting.
func Passes(start, now time.Time, honeypot string, minFill time.Duration) bool {
	if now.Sub(start) < minFill {
		return false
	}
	return honeypot == ""
}
