package submit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/enquirywitch/enquirywitch/internal/form"
)

// payloadEscaper escapes the encoded payload the way receiving endpoints
// expect it.
var payloadEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EncodePayload builds the body posted to the form endpoint: the submit
// params with the form data under "formData". Uploads are inlined as data
// URLs.
func EncodePayload(params map[string]any, data form.Data) ([]byte, error) {
	body := make(map[string]any, len(params)+1)
	maps.Copy(body, params)
	if data == nil {
		data = form.Data{}
	}
	body["formData"] = data

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return []byte(payloadEscaper.Replace(strings.TrimSuffix(buf.String(), "\n"))), nil
}
