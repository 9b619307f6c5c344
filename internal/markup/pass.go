package markup

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// sealMark brackets placeholders for generated output that later passes
// must not look into.
const sealMark = "\x1a"

var sealedRe = regexp.MustCompile(sealMark + `(\d+)` + sealMark)

// state carries the per-call input through the passes.
type state struct {
	in     Input
	sealed []string
}

// seal stores s and returns a placeholder for it.
func (st *state) seal(s string) string {
	st.sealed = append(st.sealed, s)
	return sealMark + strconv.Itoa(len(st.sealed)-1) + sealMark
}

func (st *state) unseal(s string) string {
	if len(st.sealed) == 0 {
		return s
	}
	return sealedRe.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.Atoi(strings.Trim(m, sealMark))
		if err != nil || n >= len(st.sealed) {
			return ""
		}
		return st.sealed[n]
	})
}

type span struct {
	start, end int
	text       string
}

// pass is one directive translation over the whole text.
type pass struct {
	name    string
	re      *regexp.Regexp
	replace func(st *state, groups []string) (string, error)
}

// apply finds every non-overlapping match, computes all replacements against
// the unmodified text and then splices them in from the back so earlier
// offsets stay valid. Matches whose replacement fails are left as they are.
func (p pass) apply(src string, st *state) (string, error) {
	locs := p.re.FindAllStringSubmatchIndex(src, -1)
	if len(locs) == 0 {
		return src, nil
	}

	var errs error
	spans := make([]span, 0, len(locs))
	for _, loc := range locs {
		text, err := p.replace(st, submatches(src, loc))
		if err != nil {
			errs = multierr.Append(errs, &DirectiveError{
				Directive: p.name,
				Offset:    loc[0],
				Text:      src[loc[0]:loc[1]],
				Err:       err,
			})
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[1], text: text})
	}

	out := []byte(src)
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		out = slices.Replace(out, s.start, s.end, []byte(s.text)...)
	}
	return string(out), errs
}

// submatches expands an index pair list into strings; groups that did not
// take part in the match are empty.
func submatches(src string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = src[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
