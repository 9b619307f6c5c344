package enquirywitch

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const fixtureHTML = `<tw-storydata name="Test" startnode="1" creator="jasmine" creator-version="1.2.3">
<tw-passagedata pid="1" name="Test Passage" tags="tag1 tag2">Hello world</tw-passagedata>
<tw-passagedata pid="2" name="Test Passage 2" tags="tag1 tag2">Hello world 2</tw-passagedata>
<tw-passagedata pid="3" name="Test Passage 3" tags=""><div><p><span>Test</span><p></div></tw-passagedata>
<tw-passagedata pid="4" name="Test Passage 4" tags="">{{ print( }}</tw-passagedata>
<tw-passagedata pid="5" name="Test Passage 5" tags="">[[Test Passage]]</tw-passagedata>
<script type="text/twine-javascript">window.scriptRan = true;</script>
<style type="text/twine-css">body { color: blue }</style>
</tw-storydata>`

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewDefaultRenderer(zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func testStory(t *testing.T) *Story {
	t.Helper()
	story, err := ParseHTML(strings.NewReader(fixtureHTML), testRenderer(t))
	require.NoError(t, err)
	return story
}

func mustPassage(t *testing.T, id int, name, source string) *Passage {
	t.Helper()
	p, err := NewPassage(testRenderer(t), id, name, nil, source)
	require.NoError(t, err)
	return p
}

type recordedEvent struct {
	name string
	args []any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Event(name string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, args: args})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, ev := range r.events {
		names = append(names, ev.name)
	}
	return names
}

func (r *recorder) find(name string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.name == name {
			return ev, true
		}
	}
	return recordedEvent{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
