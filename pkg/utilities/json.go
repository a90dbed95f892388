package utilities

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

const maxBodyBytes = 1 << 20

var ErrNotJSONObject = errors.New("request body must be a JSON object")

// DecodeJSONObject decodes a single JSON object from r into v. Empty bodies,
// non-object values and trailing data are rejected.
func DecodeJSONObject(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNotJSONObject
		}
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrNotJSONObject
	}
	return json.Unmarshal(raw, v)
}
