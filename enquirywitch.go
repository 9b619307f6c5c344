// Package enquirywitch is an interactive-fiction runtime for enquiry and
// contact forms written as stories.
//
// A Story is a set of passages. Each passage is written in Markdown extended
// with link, question, redirect, form field, checkbox, submit, summary and
// upload directives, and may use text/template actions over the reader's
// state. A Session follows one reader through a story and renders each
// passage to HTML.
package enquirywitch

import (
	"github.com/enquirywitch/enquirywitch/internal/expand"
	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/enquirywitch/enquirywitch/internal/markup"
)

type (
	// Options are the story-wide switches that change generated markup.
	Options = markup.Options
	// FormData is the ordered data a reader has entered into form fields.
	FormData = form.Data
	// FormField is one FormData entry.
	FormField = form.Field
	// Upload is a file attached through the upload field.
	Upload = form.Upload
	// Tracker answers visit questions for passage templates.
	Tracker = expand.Tracker
)

// Reporter receives errors a render recovered from.
type Reporter interface {
	ReportError(err error, label string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error, label string)

func (f ReporterFunc) ReportError(err error, label string) {
	f(err, label)
}

// RenderContext is everything a render reads besides the passage source.
type RenderContext struct {
	State    map[string]any
	Visits   Tracker
	FormData FormData
	Options  Options
	Reporter Reporter
}
