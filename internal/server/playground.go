package server

import (
	"net/http"
	"strings"
)

// PlaygroundRequest is the JSON request body for /api/playground.
type PlaygroundRequest struct {
	Source string `json:"source"`
}

// PlaygroundResponse is the JSON response for /api/playground.
type PlaygroundResponse struct {
	HTML   string      `json:"html"`
	Events []eventJSON `json:"events,omitempty"`
}

// handlePlayground renders passage source typed by an author against the
// reader's current state. It is only routed in debug mode.
func (s *Server) handlePlayground(w http.ResponseWriter, r *http.Request) {
	var req PlaygroundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeJSONError(w, http.StatusBadRequest, "source is required")
		return
	}

	rd := s.reader(w, r)
	rd.mu.Lock()
	defer rd.mu.Unlock()

	html := rd.session.RenderSource(req.Source)
	writeJSON(w, http.StatusOK, PlaygroundResponse{HTML: html, Events: rd.drain()})
}
