// Package assets embeds the browser client served next to a story.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the browser JavaScript
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/witch.js")
}

// GetClientCSS returns the default story stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/witch.css")
}
