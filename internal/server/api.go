package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/enquirywitch/enquirywitch"
	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/enquirywitch/enquirywitch/internal/store"
	"github.com/enquirywitch/enquirywitch/internal/submit"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// maxJSONBody caps API request bodies other than uploads.
const maxJSONBody = 64 << 10

// passageJSON is a rendered passage.
type passageJSON struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Tags   []string    `json:"tags"`
	HTML   string      `json:"html"`
	Title  string      `json:"title"`
	Events []eventJSON `json:"events,omitempty"`
}

// submitRequest is the body of POST /api/submit.
type submitRequest struct {
	Params       string `json:"params"`
	Passage      string `json:"passage"`
	Honeypot     string `json:"honeypot"`
	CaptchaToken string `json:"captchaToken"`
}

// submitResponse carries the verdict and, when the reader moved on, the
// passage shown next.
type submitResponse struct {
	Result  *submit.Result `json:"result"`
	Passage *passageJSON   `json:"passage,omitempty"`
	Events  []eventJSON    `json:"events,omitempty"`
}

func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.serveIndex)
	mux.HandleFunc("GET /assets/{file}", s.serveAsset)
	mux.HandleFunc("GET /ws", s.serveWebSocket)

	mux.HandleFunc("GET /api/current", s.handleCurrent)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("GET /api/passages/{ref}", s.handlePassage)
	mux.HandleFunc("GET /api/render/{ref}", s.handleRender)
	mux.HandleFunc("POST /api/formdata", s.handleFormData)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/checkpoint", s.handleCheckpoint)
	mux.HandleFunc("GET /api/save", s.handleSave)
	mux.HandleFunc("POST /api/restore", s.handleRestore)

	limit, done := RateLimitMiddleware(ctx,
		s.cfg.Server.GetRateLimitRPS(), s.cfg.Server.GetRateLimitBurst(), s.cfg.Server.GetMaxTrackedIPs(), s.log)
	s.limiterDone = done
	mux.Handle("POST /api/submit", limit(http.HandlerFunc(s.handleSubmit)))

	if s.cfg.Server.Debug {
		mux.HandleFunc("POST /api/playground", s.handlePlayground)
	}
	if token := s.cfg.Server.GetAdminToken(); token != "" {
		mux.Handle("GET /api/submissions", TokenMiddleware(token)(http.HandlerFunc(s.handleSubmissions)))
	}

	var h http.Handler = mux
	h = CORSMiddleware(s.cfg.Server.GetCORSOrigins())(h)
	h = SecurityHeadersMiddleware()(h)
	return WithCompression(h)
}

// lookup finds a passage by name, id or slugged name.
func lookup(story *enquirywitch.Story, ref string) *enquirywitch.Passage {
	if p := story.Lookup(ref); p != nil {
		return p
	}
	for _, p := range story.Passages() {
		if slug.Make(p.Name) == ref {
			return p
		}
	}
	return nil
}

func (rd *reader) passage(p *enquirywitch.Passage, html string) *passageJSON {
	return &passageJSON{
		ID:     p.ID,
		Name:   p.Name,
		Tags:   p.Tags,
		HTML:   html,
		Title:  rd.session.Title(),
		Events: rd.drain(),
	}
}

// writeSessionError reports a session failure along with the events it
// produced.
func writeSessionError(w http.ResponseWriter, rd *reader, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error(), "events": rd.drain()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleCurrent renders where the reader is, starting the story for a new
// reader.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	var html string
	var err error
	if rd.session.Current() == nil {
		html, err = rd.session.Start()
	} else {
		html, err = rd.session.RenderCurrent()
	}
	if err != nil {
		writeSessionError(w, rd, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rd.passage(rd.session.Current(), html))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	html, err := rd.session.Start()
	if err != nil {
		writeSessionError(w, rd, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rd.passage(rd.session.Current(), html))
}

func (s *Server) handlePassage(w http.ResponseWriter, r *http.Request) {
	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	ref := r.PathValue("ref")
	p := lookup(rd.session.Story(), ref)
	if p == nil {
		writeJSONError(w, http.StatusNotFound, "passage not found: "+ref)
		return
	}
	html, err := rd.session.Show(p.Name)
	if err != nil {
		writeSessionError(w, rd, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rd.passage(p, html))
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	ref := r.PathValue("ref")
	p := lookup(rd.session.Story(), ref)
	if p == nil {
		writeJSONError(w, http.StatusNotFound, "passage not found: "+ref)
		return
	}
	html, err := rd.session.Render(p.Name)
	if err != nil {
		writeSessionError(w, rd, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rd.passage(p, html))
}

func (s *Server) handleFormData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	switch body.Key {
	case "":
		writeJSONError(w, http.StatusBadRequest, "key is required")
		return
	case form.UploadKey:
		writeJSONError(w, http.StatusBadRequest, "use /api/upload for files")
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.session.SetFormValue(body.Key, body.Value)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Form.GetMaxUploadSize()
	if !s.cfg.Story.Options.AllowUploads {
		writeJSONError(w, http.StatusForbidden, "uploads are not enabled for this story")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile(form.UploadKey)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing upload: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unable to read upload: "+err.Error())
		return
	}
	upload, err := submit.NewUpload(header.Filename, data, limit)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, submit.ErrUploadTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, submit.ErrUploadType):
			status = http.StatusUnsupportedMediaType
		}
		writeJSONError(w, status, err.Error())
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.session.SetFormValue(form.UploadKey, upload)
	writeJSON(w, http.StatusOK, map[string]any{"name": upload.Name, "type": upload.Type, "size": len(upload.Data)})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.flow == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "submissions are not configured")
		return
	}
	var body submitRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	res, err := s.flow.Submit(r.Context(), submit.Request{
		Data:         body.Params,
		Target:       body.Passage,
		FormData:     rd.session.FormData(),
		Started:      rd.session.StartTime(),
		Honeypot:     body.Honeypot,
		CaptchaToken: body.CaptchaToken,
		Options:      rd.session.Options(),
	})
	if err != nil {
		s.log.Error("Submit failed", zap.String("session", rd.id), zap.Error(err))
		rd.session.SendingFailed(err, submit.UserFriendlyMessage(err))
		writeSessionError(w, rd, http.StatusInternalServerError, err)
		return
	}

	resp := submitResponse{Result: res}
	switch res.Verdict {
	case submit.VerdictSent, submit.VerdictPreview:
		if res.Target != "" {
			p := lookup(rd.session.Story(), res.Target)
			if p == nil {
				writeSessionError(w, rd, http.StatusNotFound, errors.New("passage not found: "+res.Target))
				return
			}
			html, err := rd.session.Show(p.Name)
			if err != nil {
				writeSessionError(w, rd, http.StatusNotFound, err)
				return
			}
			resp.Passage = rd.passage(p, html)
		}
	case submit.VerdictFailed:
		rd.session.SendingFailed(res.Err, res.Message)
	}
	if resp.Passage == nil {
		resp.Events = rd.drain()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.session.Checkpoint(body.Name)
	writeJSON(w, http.StatusOK, map[string]any{"title": rd.session.Title(), "events": rd.drain()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	hash, err := rd.session.Save()
	if err != nil {
		writeSessionError(w, rd, http.StatusInternalServerError, err)
		return
	}
	slot := r.URL.Query().Get("slot")
	if slot != "" {
		if err := s.store.SaveSlot(r.Context(), rd.id, slot, hash); err != nil {
			s.log.Error("Unable to save slot", zap.String("slot", slot), zap.Error(err))
			writeSessionError(w, rd, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": hash, "slot": slot, "events": rd.drain()})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
		Slot string `json:"slot"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	hash := body.Hash
	if body.Slot != "" {
		var err error
		hash, err = s.store.LoadSlot(r.Context(), rd.id, body.Slot)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "no save in slot "+strconv.Quote(body.Slot))
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if !rd.session.Restore(hash) {
		writeSessionError(w, rd, http.StatusUnprocessableEntity, errors.New("save could not be restored"))
		return
	}
	current := rd.session.Current()
	if current == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": rd.drain()})
		return
	}
	events := rd.drain()
	html, err := rd.session.RenderCurrent()
	if err != nil {
		writeSessionError(w, rd, http.StatusInternalServerError, err)
		return
	}
	p := rd.passage(current, html)
	p.Events = append(events, p.Events...)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	subs, err := s.store.Submissions(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, subs)
}
