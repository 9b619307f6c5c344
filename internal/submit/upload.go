package submit

import (
	"errors"
	"fmt"

	"github.com/enquirywitch/enquirywitch/internal/form"
	"github.com/h2non/filetype"
)

// DefaultMaxUploadSize caps an upload at 5MB.
const DefaultMaxUploadSize = 5 << 20

var (
	ErrUploadEmpty    = errors.New("upload is empty")
	ErrUploadTooLarge = errors.New("upload is too large")
	ErrUploadType     = errors.New("upload type is not accepted")
)

// NewUpload checks an uploaded file and records its detected MIME type.
// Images, PDF and Word documents are accepted.
func NewUpload(name string, data []byte, limit int64) (*form.Upload, error) {
	if limit <= 0 {
		limit = DefaultMaxUploadSize
	}
	switch {
	case len(data) == 0:
		return nil, ErrUploadEmpty
	case int64(len(data)) > limit:
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrUploadTooLarge, len(data), limit)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, fmt.Errorf("%w: unrecognized content", ErrUploadType)
	}
	if !filetype.IsImage(data) && !acceptedDocument(kind.Extension) {
		return nil, fmt.Errorf("%w: %s", ErrUploadType, kind.MIME.Value)
	}

	if name == "" {
		name = "upload." + kind.Extension
	}
	return &form.Upload{Name: name, Type: kind.MIME.Value, Data: data}, nil
}

func acceptedDocument(ext string) bool {
	switch ext {
	case "pdf", "doc", "docx":
		return true
	}
	return false
}
