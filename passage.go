package enquirywitch

import (
	"fmt"
	"html"
	"slices"
)

// Passage is one named unit of story content.
type Passage struct {
	ID   int
	Name string
	Tags []string

	source   string
	renderer *Renderer
}

// NewPassage creates a passage. Missing id and name default to 1 and
// "Default". Character references in source are decoded once here.
func NewPassage(r *Renderer, id int, name string, tags []string, source string) (*Passage, error) {
	if r == nil {
		return nil, ErrNoRenderer
	}
	if id <= 0 {
		id = 1
	}
	if name == "" {
		name = "Default"
	}
	tags = slices.Clone(tags)
	if tags == nil {
		tags = []string{}
	}
	return &Passage{
		ID:       id,
		Name:     name,
		Tags:     tags,
		source:   html.UnescapeString(source),
		renderer: r,
	}, nil
}

// Source returns the decoded passage source.
func (p *Passage) Source() string {
	return p.source
}

// HasTag reports whether the passage carries tag.
func (p *Passage) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// Render renders the passage source.
func (p *Passage) Render(rc *RenderContext) string {
	return p.RenderSource(rc, p.source)
}

// RenderSource renders source in place of the passage's own source.
func (p *Passage) RenderSource(rc *RenderContext, source string) string {
	return p.renderer.Render(fmt.Sprintf("passage %q", p.Name), source, rc)
}
