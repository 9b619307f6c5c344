package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/enquirywitch/enquirywitch"
	"github.com/enquirywitch/enquirywitch/internal/config"
	"github.com/enquirywitch/enquirywitch/internal/submit"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const storyHTML = `<tw-storydata name="Enquiry" startnode="1">
<tw-passagedata pid="1" name="Start" tags="intro">Welcome to the desk.

[[Ask a question->Ask Question]]</tw-passagedata>
<tw-passagedata pid="2" name="Ask Question" tags="">Please check your message.

SUMMARY

[[Send it!!desk@example.com!!Thanks]]</tw-passagedata>
<tw-passagedata pid="3" name="Thanks" tags="">Thanks for writing.</tw-passagedata>
<style type="text/twine-css">.story { color: teal }</style>
</tw-storydata>`

type stubOutput struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (o *stubOutput) Name() string { return "webhook" }

func (o *stubOutput) Send(context.Context, *submit.Submission) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.err
}

func (o *stubOutput) Close() error { return nil }

func (o *stubOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func parseStory(t *testing.T, src string) *enquirywitch.Story {
	t.Helper()
	rdr, err := enquirywitch.NewDefaultRenderer(zaptest.NewLogger(t))
	require.NoError(t, err)
	story, err := enquirywitch.ParseHTML(strings.NewReader(src), rdr)
	require.NoError(t, err)
	return story
}

// testEnv is a running server with a cookie-keeping client.
type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, cfg *config.Config, opts ...Option) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	srv, err := New(cfg, parseStory(t, storyHTML), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, ts: ts, client: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func eventNames(events []eventJSON) []string {
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

func TestNewRequiresStory(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestServerAddr(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090
	srv, err := New(cfg, parseStory(t, storyHTML))
	require.NoError(t, err)
	defer srv.Close()

	assert.Equal(t, "127.0.0.1:9090", srv.Addr())
}

func TestServerCloseIdempotent(t *testing.T) {
	srv, err := New(nil, parseStory(t, storyHTML))
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

func TestReloadWithoutPath(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Error(t, env.srv.Reload())
}

func TestReloadSwapsStoryInSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.html")
	require.NoError(t, os.WriteFile(path, []byte(storyHTML), 0o644))

	cfg := config.DefaultConfig()
	cfg.Story.Path = path
	env := newTestEnv(t, cfg)

	resp := env.do(t, http.MethodGet, "/api/passages/Thanks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := strings.Replace(storyHTML, "Thanks for writing.", "We will write back soon.", 1)
	updated = strings.Replace(updated, `name="Enquiry"`, `name="Help Desk"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, env.srv.Reload())
	assert.Equal(t, "Help Desk", env.srv.Story().Name)

	resp = env.do(t, http.MethodGet, "/api/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeBody[passageJSON](t, resp)
	assert.Equal(t, "Thanks", p.Name)
	assert.Contains(t, p.HTML, "We will write back soon.")
	assert.Equal(t, "Help Desk", p.Title)
}

func TestReloadKeepsStoryOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>not a story</p>"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Story.Path = path
	env := newTestEnv(t, cfg)

	require.Error(t, env.srv.Reload())
	assert.Equal(t, "Enquiry", env.srv.Story().Name)
}

func TestWebSocketReload(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.srv.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.srv.BroadcastReload("story.html")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg reloadMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, reloadMessage{Action: "reload", FilePath: "story.html", Story: "Enquiry"}, msg)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.srv.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, env.srv.ConnectionCount())
}

func TestBroadcastWithoutConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.BroadcastReload("story.html")
	assert.Equal(t, 0, env.srv.ConnectionCount())
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sessionCookieOf(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	require.Fail(t, "response carries no session cookie")
	return nil
}

func TestSessionCookieSlidesWithActivity(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.SessionTTL = "1m"
	env := newTestEnv(t, cfg)
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	env.srv.readers.SetClock(clk.now)

	resp := env.do(t, http.MethodGet, "/api/passages/Thanks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := sessionCookieOf(t, resp)
	assert.Equal(t, 60, first.MaxAge)

	// Active every 40s: well past the TTL since the first request.
	for range 4 {
		clk.advance(40 * time.Second)
		resp = env.do(t, http.MethodGet, "/api/current", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		c := sessionCookieOf(t, resp)
		assert.Equal(t, first.Value, c.Value)
		assert.Equal(t, 60, c.MaxAge)

		p := decodeBody[passageJSON](t, resp)
		assert.Equal(t, "Thanks", p.Name, "progress kept while the reader is active")
	}

	// Idle past the TTL: same id, fresh session.
	clk.advance(2 * time.Minute)
	resp = env.do(t, http.MethodGet, "/api/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first.Value, sessionCookieOf(t, resp).Value)
	assert.Equal(t, "Start", decodeBody[passageJSON](t, resp).Name)
}
