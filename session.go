package enquirywitch

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	lzstring "github.com/daku10/go-lz-string"
)

// Session follows one reader through a story: variables, visit history,
// checkpoint, form data and the time the reader started.
type Session struct {
	mu sync.Mutex

	story    *Story
	listener Listener
	options  Options
	now      func() time.Time

	state          map[string]any
	history        []int
	current        *Passage
	checkpointName string
	atCheckpoint   bool
	checkpointHash string
	title          string
	formData       FormData
	started        time.Time

	pending []event
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithListener sets the receiver of story events.
func WithListener(l Listener) SessionOption {
	return func(s *Session) { s.listener = l }
}

// WithOptions sets the markup options used for every render.
func WithOptions(o Options) SessionOption {
	return func(s *Session) { s.options = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session positioned before the start passage.
func NewSession(story *Story, opts ...SessionOption) *Session {
	s := &Session{
		story: story,
		now:   time.Now,
		state: map[string]any{},
		title: story.Name,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	return s
}

// savedState is the JSON behind a save hash.
type savedState struct {
	State          map[string]any `json:"state"`
	History        []int          `json:"history"`
	CheckpointName string         `json:"checkpointName"`
}

// do runs fn under the session lock and delivers the events it queued once
// the lock is released.
func (s *Session) do(fn func()) {
	s.mu.Lock()
	fn()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.listener == nil {
		return
	}
	for _, ev := range events {
		s.listener.Event(ev.name, ev.args...)
	}
}

func (s *Session) emit(name string, args ...any) {
	s.pending = append(s.pending, event{name: name, args: args})
}

// ReportError queues a story error event. Renders use it as their Reporter.
func (s *Session) ReportError(err error, label string) {
	s.emit(EventStoryError, err, label)
}

// Story returns the story being read.
func (s *Session) Story() *Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.story
}

// SetStory swaps in a reloaded story. State and history are kept; the
// current passage is looked up again by id and dropped if it is gone.
func (s *Session) SetStory(story *Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current = story.PassageByID(s.current.ID)
	}
	s.story = story
	s.title = story.Name
	if s.checkpointName != "" {
		s.title += ": " + s.checkpointName
	}
}

// SendingFailed announces a submission that could not be delivered, with
// the message shown to the reader.
func (s *Session) SendingFailed(err error, message string) {
	s.do(func() { s.emit(EventSendingError, err, message) })
}

// Start resets the session and shows the start passage.
func (s *Session) Start() (out string, err error) {
	s.do(func() {
		s.state = map[string]any{}
		s.history = nil
		s.current = nil
		s.checkpointName = ""
		s.atCheckpoint = false
		s.title = s.story.Name
		s.formData = nil
		s.started = s.now()
		out, err = s.show(s.story.Start(), false)
	})
	return out, err
}

// Show navigates to the passage named or numbered ref and renders it.
func (s *Session) Show(ref string) (out string, err error) {
	s.do(func() {
		p := s.story.Lookup(ref)
		if p == nil {
			err = fmt.Errorf("%w: %q", ErrPassageNotFound, ref)
			s.emit(EventStoryError, err, "show")
			return
		}
		out, err = s.show(p, false)
	})
	return out, err
}

func (s *Session) show(p *Passage, noHistory bool) (string, error) {
	if p == nil {
		return "", ErrNoStartPassage
	}
	s.emit(EventPassageHidden, s.current)

	if !noHistory {
		s.history = append(s.history, p.ID)
		if s.atCheckpoint {
			if hash, err := s.saveHash(); err != nil {
				s.emit(EventCheckpointFailed, err)
			} else {
				s.checkpointHash = hash
				s.emit(EventCheckpointAdded, s.checkpointName)
			}
		}
	}
	s.current = p
	s.atCheckpoint = false

	s.emit(EventPassageShowing, p)
	out := p.Render(s.renderContext())
	s.emit(EventPassageShown, p)
	return out, nil
}

// Render renders the passage named or numbered ref without navigating.
func (s *Session) Render(ref string) (out string, err error) {
	s.do(func() {
		p := s.story.Lookup(ref)
		if p == nil {
			err = fmt.Errorf("%w: %q", ErrPassageNotFound, ref)
			return
		}
		out = p.Render(s.renderContext())
	})
	return out, err
}

// RenderCurrent renders the passage the reader is on.
func (s *Session) RenderCurrent() (out string, err error) {
	s.do(func() {
		if s.current == nil {
			err = ErrPassageNotFound
			return
		}
		out = s.current.Render(s.renderContext())
	})
	return out, err
}

// RenderSource renders source as if it were the current passage (the start
// passage before Start) without navigating.
func (s *Session) RenderSource(source string) (out string) {
	s.do(func() {
		host := s.current
		if host == nil {
			host = s.story.Start()
		}
		out = host.RenderSource(s.renderContext(), source)
	})
	return out
}

// renderContext snapshots the session for one render. Template functions
// read the snapshot, not the live session.
func (s *Session) renderContext() *RenderContext {
	return &RenderContext{
		State: s.state,
		Visits: &visitLog{
			story:   s.story,
			history: slices.Clone(s.history),
			current: s.current,
		},
		FormData: s.formData.Clone(),
		Options:  s.options,
		Reporter: s,
	}
}

// Checkpoint marks the next navigation as a save point. A non-empty name
// also changes the title to "<story>: <name>".
func (s *Session) Checkpoint(name string) {
	s.do(func() {
		s.checkpointName = name
		if name != "" {
			s.title = s.story.Name + ": " + name
		}
		s.atCheckpoint = true
		s.emit(EventCheckpointAdding, name)
	})
}

// Title returns the current document title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// AtCheckpoint reports whether a checkpoint is waiting for the next
// navigation.
func (s *Session) AtCheckpoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atCheckpoint
}

// LastCheckpoint returns the name and save hash of the last checkpoint that
// was reached.
func (s *Session) LastCheckpoint() (name, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointName, s.checkpointHash
}

// SaveHash serializes state, history and checkpoint name as an LZString
// base64 string.
func (s *Session) SaveHash() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveHash()
}

func (s *Session) saveHash() (string, error) {
	b, err := json.Marshal(savedState{
		State:          s.state,
		History:        s.history,
		CheckpointName: s.checkpointName,
	})
	if err != nil {
		return "", fmt.Errorf("unable to encode session: %w", err)
	}
	return lzstring.CompressToBase64(string(b))
}

// Save computes the save hash and announces it.
func (s *Session) Save() (hash string, err error) {
	s.do(func() {
		if hash, err = s.saveHash(); err == nil {
			s.emit(EventStorySaved, hash)
		}
	})
	return hash, err
}

// Restore loads a save hash and shows the last passage in its history
// without adding to it. It reports whether the hash could be used.
func (s *Session) Restore(hash string) (ok bool) {
	s.do(func() {
		if err := s.restore(hash); err != nil {
			s.emit(EventRestoreFailed, err)
			return
		}
		s.emit(EventRestoreSuccess)
		ok = true
	})
	return ok
}

func (s *Session) restore(hash string) error {
	if hash == "" {
		return errors.New("empty save hash")
	}
	raw, err := lzstring.DecompressFromBase64(hash)
	if err != nil {
		return fmt.Errorf("unable to decompress save hash: %w", err)
	}
	var saved savedState
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return fmt.Errorf("unable to decode save hash: %w", err)
	}

	var last *Passage
	if n := len(saved.History); n > 0 {
		if last = s.story.PassageByID(saved.History[n-1]); last == nil {
			return fmt.Errorf("%w: id %d", ErrPassageNotFound, saved.History[n-1])
		}
	}

	if saved.State == nil {
		saved.State = map[string]any{}
	}
	s.state = saved.State
	s.history = saved.History
	s.checkpointName = saved.CheckpointName
	if last != nil {
		_, err = s.show(last, true)
	}
	return err
}

// Set stores a state variable.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

// Get reads a state variable.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// State returns a copy of the state variables.
func (s *Session) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.state)
}

// SetFormValue records a value entered into the field bound to key.
func (s *Session) SetFormValue(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formData.Set(key, value)
}

// FormData returns a copy of the form data.
func (s *Session) FormData() FormData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formData.Clone()
}

// StartTime is when the reader started the story.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Options returns the markup options of the session.
func (s *Session) Options() Options {
	return s.options
}

// Current returns the passage being shown, or nil before Start.
func (s *Session) Current() *Passage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns the ids of visited passages, oldest first.
func (s *Session) History() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Visited counts visits to the referenced passages; see visitLog.
func (s *Session) Visited(refs ...any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&visitLog{story: s.story, history: s.history, current: s.current}).Visited(refs...)
}

// HasVisited reports whether every referenced passage was visited.
func (s *Session) HasVisited(refs ...any) bool {
	return s.Visited(refs...) > 0
}

// visitLog answers visit questions from a history snapshot.
type visitLog struct {
	story   *Story
	history []int
	current *Passage
}

// Visited returns how often a passage appears in the history. With several
// refs it returns the smallest count; with none it uses the current passage.
// Unknown passages count as unvisited.
func (v *visitLog) Visited(refs ...any) int {
	if len(refs) == 0 {
		if v.current == nil {
			return 0
		}
		refs = []any{v.current.ID}
	}

	least := -1
	for _, ref := range refs {
		n := 0
		if p := v.resolve(ref); p != nil {
			for _, id := range v.history {
				if id == p.ID {
					n++
				}
			}
		}
		if least < 0 || n < least {
			least = n
		}
	}
	return least
}

func (v *visitLog) HasVisited(refs ...any) bool {
	return v.Visited(refs...) > 0
}

func (v *visitLog) resolve(ref any) *Passage {
	switch r := ref.(type) {
	case *Passage:
		return r
	case int:
		return v.story.PassageByID(r)
	case int64:
		return v.story.PassageByID(int(r))
	case float64:
		return v.story.PassageByID(int(r))
	case string:
		return v.story.Lookup(r)
	}
	return v.story.Lookup(fmt.Sprint(ref))
}
