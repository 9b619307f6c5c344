package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/enquirywitch/enquirywitch/internal/assets"
	"go.uber.org/zap"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
<link rel="stylesheet" href="/assets/witch.css">
{{- range .Styles }}
<style>{{ . }}</style>
{{- end }}
</head>
<body>
<main id="story" data-story="{{ .Story }}"{{ if .Live }} data-live{{ end }}></main>
<p id="witch-message" role="alert"></p>
<script src="/assets/witch.js"></script>
{{- range .Scripts }}
<script>{{ . }}</script>
{{- end }}
</body>
</html>
`))

type pageData struct {
	Title   string
	Story   string
	Live    bool
	Styles  []template.CSS
	Scripts []template.JS
}

// serveIndex serves the host page the client renders passages into.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	story := s.Story()
	data := pageData{
		Title: story.Name,
		Story: story.Name,
		Live:  s.watcher != nil,
	}
	// Story scripts and styles come from the author and are trusted.
	for _, css := range story.UserStyles {
		data.Styles = append(data.Styles, template.CSS(css))
	}
	for _, js := range story.UserScripts {
		data.Scripts = append(data.Scripts, template.JS(js))
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.log.Error("Unable to render page", zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// serveAsset serves embedded client assets.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	var (
		data  []byte
		err   error
		ctype string
	)
	switch r.PathValue("file") {
	case "witch.js":
		data, err = assets.GetClientJS()
		ctype = "application/javascript"
	case "witch.css":
		data, err = assets.GetClientCSS()
		ctype = "text/css"
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", ctype)
	_, _ = w.Write(data)
}
