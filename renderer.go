package enquirywitch

import (
	"github.com/enquirywitch/enquirywitch/internal/expand"
	"github.com/enquirywitch/enquirywitch/internal/markup"
	"go.uber.org/zap"
)

// TextExpander evaluates template actions in passage source.
type TextExpander interface {
	Expand(src string, scope expand.Scope) (string, error)
}

// Renderer turns passage source into HTML: template expansion, directive
// translation, then Markdown. It holds no per-render state.
type Renderer struct {
	engine   *markup.Engine
	expander TextExpander
	log      *zap.Logger
}

// NewRenderer creates a renderer from its collaborators.
func NewRenderer(md markup.Converter, ex TextExpander, log *zap.Logger) (*Renderer, error) {
	if ex == nil {
		return nil, ErrNoExpander
	}
	engine, err := markup.New(md)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{engine: engine, expander: ex, log: log}, nil
}

// NewDefaultRenderer uses the goldmark converter and the text/template
// expander.
func NewDefaultRenderer(log *zap.Logger) (*Renderer, error) {
	return NewRenderer(markup.NewMarkdown(), expand.New(), log)
}

// Render produces HTML for source. Expansion failures are reported and
// render continues with empty text; untranslatable directives are reported
// and left in place.
func (r *Renderer) Render(label, source string, rc *RenderContext) string {
	if rc == nil {
		rc = &RenderContext{}
	}
	rep := rc.Reporter
	if rep == nil {
		rep = ReporterFunc(func(err error, label string) {
			r.log.Warn("Render problem", zap.String("where", label), zap.Error(err))
		})
	}

	expanded, err := r.expander.Expand(source, expand.Scope{State: rc.State, Tracker: rc.Visits})
	if err != nil {
		rep.ReportError(err, label+" template")
		expanded = ""
	}

	out, err := r.engine.Render(expanded, markup.Input{FormData: rc.FormData, Options: rc.Options})
	if err != nil {
		rep.ReportError(err, label+" markup")
	}
	return out
}
