// Package form holds the ordered form data collected while a reader moves
// through a story.
package form

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// UploadKey is the form data key bound to the file upload field.
const UploadKey = "upload"

// Field is a single form data entry.
type Field struct {
	Key   string
	Value any
}

// Upload is a file chosen in the upload field.
type Upload struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Data []byte `json:"-"`
}

// DataURL returns the file encoded as a data URL.
func (u *Upload) DataURL() string {
	typ := u.Type
	if typ == "" {
		typ = "application/octet-stream"
	}
	return "data:" + typ + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}

// MarshalJSON encodes the upload the way submissions expect it: name plus
// the file content as a data URL.
func (u *Upload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		File string `json:"file"`
		Name string `json:"name"`
	}{File: u.DataURL(), Name: u.Name})
}

// Data is the ordered form data. Each key appears at most once and keeps the
// position it was first set at.
type Data []Field

// Set updates key in place or appends it.
func (d *Data) Set(key string, value any) {
	for i := range *d {
		if (*d)[i].Key == key {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (d Data) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Upload returns the uploaded file, if one was attached.
func (d Data) Upload() (*Upload, bool) {
	v, ok := d.Get(UploadKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*Upload)
	if !ok || u == nil || u.Name == "" {
		return nil, false
	}
	return u, true
}

// Clone returns a copy that can be modified independently.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	copy(out, d)
	return out
}

// MarshalJSON encodes the data as an array of single-key objects.
func (d Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalRaw(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := marshalRaw(f.Value)
		if err != nil {
			return nil, fmt.Errorf("form field %q: %w", f.Key, err)
		}
		buf.WriteByte('{')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalRaw leaves HTML escaping to the outer encoder.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes an array of single-key objects. An object stored
// under the upload key is decoded as an Upload reference.
func (d *Data) UnmarshalJSON(b []byte) error {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Data, 0, len(raw))
	for i, entry := range raw {
		if len(entry) != 1 {
			return fmt.Errorf("form data entry %d: expected a single key, got %d", i, len(entry))
		}
		for k, v := range entry {
			value, err := decodeValue(k, v)
			if err != nil {
				return fmt.Errorf("form field %q: %w", k, err)
			}
			out.Set(k, value)
		}
	}
	*d = out
	return nil
}

func decodeValue(key string, raw json.RawMessage) (any, error) {
	if key == UploadKey && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		var u Upload
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
