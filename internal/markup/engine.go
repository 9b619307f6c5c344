// Package markup translates passage markup into HTML.
//
// Translation is a fixed sequence of text passes, one per directive
// (attribute shorthand, links, questions, redirects, form fields,
// checkboxes, submit links, the message summary and uploads), followed by a
// Markdown conversion of the result.
package markup

import (
	"fmt"
	"strings"

	"github.com/enquirywitch/enquirywitch/internal/form"
	"go.uber.org/multierr"
)

// Options are the story-wide switches that change generated markup.
type Options struct {
	AllowUploads        bool `yaml:"allow_uploads" json:"allowUploads"`
	OverrideSpamFilters bool `yaml:"override_spam_filters" json:"overrideSpamFilters"`
}

// Input is everything besides the source text that a translation reads.
type Input struct {
	FormData form.Data
	Options  Options
}

// Engine runs the directive passes and the Markdown conversion. It keeps no
// per-call state and is safe for concurrent use.
type Engine struct {
	md Converter
}

// New creates an engine that finishes with md.
func New(md Converter) (*Engine, error) {
	if md == nil {
		return nil, ErrNoConverter
	}
	return &Engine{md: md}, nil
}

// Translate runs the directive passes only. Directives that cannot be
// translated stay in the text and are returned as *DirectiveError values
// combined with multierr.
func (e *Engine) Translate(src string, in Input) (string, error) {
	st := &state{in: in}
	out := strings.ReplaceAll(src, sealMark, "")

	var errs error
	for _, p := range passes {
		var err error
		out, err = p.apply(out, st)
		errs = multierr.Append(errs, err)
	}
	return st.unseal(out), errs
}

// Render translates src and converts the result to HTML. The returned HTML
// is usable even when err reports skipped directives.
func (e *Engine) Render(src string, in Input) (string, error) {
	out, errs := e.Translate(src, in)
	html, err := e.md.Convert(out)
	if err != nil {
		return "", multierr.Append(errs, fmt.Errorf("markdown: %w", err))
	}
	return html, errs
}
