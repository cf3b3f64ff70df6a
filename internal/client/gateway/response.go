package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errNoField = errors.New("field not present")

// Fields holds the top-level members of a JSON object body, undecoded.
type Fields map[string]json.RawMessage

// Has reports whether key is present and not JSON null.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Bool returns the value of key when it is a JSON boolean, false otherwise.
func (f Fields) Bool(key string) bool {
	var b bool
	if err := f.Decode(key, &b); err != nil {
		return false
	}
	return b
}

// String returns the value of key when it is a JSON string, "" otherwise.
func (f Fields) String(key string) string {
	var s string
	if err := f.Decode(key, &s); err != nil {
		return ""
	}
	return s
}

// Decode unmarshals the value of key into v. A missing key is an error.
func (f Fields) Decode(key string, v any) error {
	raw, ok := f[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, errNoField)
	}
	return json.Unmarshal(raw, v)
}

// message picks the human-readable text the backend put in the body.
func (f Fields) message() string {
	if m := f.String("message"); m != "" {
		return m
	}
	return f.String("error")
}

// Response is a successful (2xx) answer with its body normalised to JSON.
type Response struct {
	Status    int
	RequestID string
	Fields    Fields
	raw       []byte
}

// Decode unmarshals the whole body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.raw, v)
}

// Message is the body's "message" (or "error") text, if any.
func (r *Response) Message() string {
	return r.Fields.message()
}

// normalizeBody turns whatever the server sent into JSON:
//   - empty body     -> {}
//   - valid JSON     -> as is
//   - anything else  -> {"message": <text>}
//
// Fields is populated only when the result is a JSON object.
func normalizeBody(body []byte) ([]byte, Fields) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []byte("{}"), Fields{}
	}

	if json.Valid(trimmed) {
		var f Fields
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return trimmed, Fields{}
		}
		if f == nil {
			f = Fields{}
		}
		return trimmed, f
	}

	text, _ := json.Marshal(string(trimmed))
	return []byte(`{"message":` + string(text) + `}`), Fields{"message": text}
}
