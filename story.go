package enquirywitch

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/enquirywitch/enquirywitch/internal/markup"
	"github.com/maruel/natural"
	"go.uber.org/multierr"
)

// Story is a loaded story. It is read-only after construction and safe for
// concurrent use.
type Story struct {
	Name           string
	Creator        string
	CreatorVersion string
	StartPassage   int
	UserScripts    []string
	UserStyles     []string

	passages []*Passage
	byID     map[int]*Passage
	byName   map[string]*Passage
}

// NewStory indexes passages. A zero start selects the passage with the
// lowest id.
func NewStory(name string, start int, passages []*Passage) (*Story, error) {
	s := &Story{
		Name:     name,
		byID:     make(map[int]*Passage, len(passages)),
		byName:   make(map[string]*Passage, len(passages)),
		passages: slices.Clone(passages),
	}
	slices.SortStableFunc(s.passages, func(a, b *Passage) int { return a.ID - b.ID })

	for _, p := range s.passages {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicatePassage, p.ID)
		}
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicatePassage, p.Name)
		}
		s.byID[p.ID] = p
		s.byName[p.Name] = p
	}

	if start == 0 && len(s.passages) > 0 {
		start = s.passages[0].ID
	}
	if _, ok := s.byID[start]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNoStartPassage, start)
	}
	s.StartPassage = start
	return s, nil
}

// Passages returns all passages ordered by id.
func (s *Story) Passages() []*Passage {
	return slices.Clone(s.passages)
}

// PassageByID returns the passage with id, or nil.
func (s *Story) PassageByID(id int) *Passage {
	return s.byID[id]
}

// PassageByName returns the passage called name, or nil.
func (s *Story) PassageByName(name string) *Passage {
	return s.byName[name]
}

// Lookup finds a passage by name, falling back to a numeric id.
func (s *Story) Lookup(ref string) *Passage {
	if p := s.byName[ref]; p != nil {
		return p
	}
	if id, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		return s.byID[id]
	}
	return nil
}

// Start returns the start passage.
func (s *Story) Start() *Passage {
	return s.byID[s.StartPassage]
}

// Render renders the passage named or numbered ref.
func (s *Story) Render(ref string, rc *RenderContext) (string, error) {
	p := s.Lookup(ref)
	if p == nil {
		return "", fmt.Errorf("%w: %q", ErrPassageNotFound, ref)
	}
	return p.Render(rc), nil
}

// Validate checks that every link target names a passage. Targets built by
// template actions are not checked.
func (s *Story) Validate() error {
	var errs error
	for _, p := range s.passages {
		var missing []string
		for _, target := range markup.LinkTargets(p.Source()) {
			if strings.Contains(target, "{{") {
				continue
			}
			if s.Lookup(target) == nil && !slices.Contains(missing, target) {
				missing = append(missing, target)
			}
		}
		sort.Sort(natural.StringSlice(missing))
		for _, target := range missing {
			errs = multierr.Append(errs, &ParseError{
				Passage: p.Name,
				Message: fmt.Sprintf("link to missing passage %q", target),
				Hint:    "check the spelling of the passage name or add the passage",
				Err:     ErrPassageNotFound,
			})
		}
	}
	return errs
}
