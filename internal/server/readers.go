package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/enquirywitch/enquirywitch"
	"github.com/google/uuid"
)

// sessionCookie carries the reader's session id.
const sessionCookie = "witch_session"

// eventJSON is a story event reported back to the browser.
type eventJSON struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// reader is one browser's session. mu serializes its requests; events
// collects what the session announced during the current request.
type reader struct {
	id      string
	mu      sync.Mutex
	session *enquirywitch.Session
	events  []eventJSON
}

// Event implements enquirywitch.Listener.
func (rd *reader) Event(name string, args ...any) {
	ev := eventJSON{Name: name}
	for _, a := range args {
		ev.Args = append(ev.Args, eventArg(a))
	}
	rd.events = append(rd.events, ev)
}

func (rd *reader) drain() []eventJSON {
	events := rd.events
	rd.events = nil
	return events
}

func eventArg(a any) any {
	switch v := a.(type) {
	case nil:
		return nil
	case error:
		return v.Error()
	case *enquirywitch.Passage:
		if v == nil {
			return nil
		}
		return v.Name
	case string, bool, int, int64, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// reader returns the session named by the request cookie, creating one
// when there is none. A known id whose session expired gets a fresh session
// under the same id so its save slots stay reachable. The cookie is sent
// again on every request so it lives as long as the session keeps sliding.
func (s *Server) reader(w http.ResponseWriter, r *http.Request) *reader {
	id := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			id = c.Value
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	rd, _ := s.readers.GetOrCreate(id, func() *reader {
		rd := &reader{id: id}
		rd.session = enquirywitch.NewSession(s.Story(),
			enquirywitch.WithListener(rd),
			enquirywitch.WithOptions(s.cfg.Story.Options),
		)
		return rd
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cfg.Server.GetSessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return rd
}
