// Package expand evaluates the template markup in passage source against the
// story state before directive translation runs.
package expand

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// Tracker answers questions about the passages a reader has seen.
type Tracker interface {
	Visited(refs ...any) int
	HasVisited(refs ...any) bool
}

// Scope is what a passage template can read. State is the template dot.
type Scope struct {
	State   map[string]any
	Tracker Tracker
}

// Expander evaluates passage templates with text/template and the sprig
// function set, plus visited, hasVisited and either.
type Expander struct {
	funcs      template.FuncMap
	missingKey string
}

// Option configures an Expander.
type Option func(*Expander)

// WithFuncs adds template functions. They override sprig functions of the
// same name.
func WithFuncs(fm template.FuncMap) Option {
	return func(e *Expander) {
		for k, v := range fm {
			e.funcs[k] = v
		}
	}
}

// WithMissingKey sets the text/template missingkey option ("default",
// "zero" or "error").
func WithMissingKey(mode string) Option {
	return func(e *Expander) {
		e.missingKey = mode
	}
}

// New creates an Expander.
func New(opts ...Option) *Expander {
	e := &Expander{
		funcs:      sprig.FuncMap(),
		missingKey: "default",
	}
	// Passage templates cannot read the server environment.
	delete(e.funcs, "env")
	delete(e.funcs, "expandenv")
	e.funcs["either"] = Either
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand evaluates src. Source without template actions is returned as is.
func (e *Expander) Expand(src string, scope Scope) (string, error) {
	if !strings.Contains(src, "{{") {
		return src, nil
	}

	tmpl, err := template.New("passage").
		Option("missingkey=" + e.missingKey).
		Funcs(e.funcs).
		Funcs(trackerFuncs(scope.Tracker)).
		Parse(src)
	if err != nil {
		return "", fmt.Errorf("unable to parse passage template: %w", err)
	}

	state := scope.State
	if state == nil {
		state = map[string]any{}
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, state); err != nil {
		return "", fmt.Errorf("unable to expand passage template: %w", err)
	}
	return buf.String(), nil
}

func trackerFuncs(tr Tracker) template.FuncMap {
	return template.FuncMap{
		"visited": func(refs ...any) int {
			if tr == nil {
				return 0
			}
			return tr.Visited(refs...)
		},
		"hasVisited": func(refs ...any) bool {
			if tr == nil {
				return false
			}
			return tr.HasVisited(refs...)
		},
	}
}

// Either returns one of its arguments at random. Slice arguments contribute
// their elements. With no candidates it returns nil.
func Either(values ...any) any {
	var pool []any
	for _, v := range values {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				pool = append(pool, rv.Index(i).Interface())
			}
			continue
		}
		pool = append(pool, v)
	}
	switch len(pool) {
	case 0:
		return nil
	case 1:
		return pool[0]
	}
	return pool[rand.IntN(len(pool))]
}
