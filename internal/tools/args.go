package tools

import (
	"bytes"
	"encoding/json"
)

// DecodeArgs unmarshals tool arguments into v. Missing or null input decodes
// as an empty object.
func DecodeArgs(name string, input json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return NewInvalidParamsError(name, err)
	}
	return nil
}

// IsEmptyArgs reports whether input carries no arguments at all.
func IsEmptyArgs(input json.RawMessage) bool {
	trimmed := bytes.TrimSpace(input)
	switch string(trimmed) {
	case "", "null", "{}", "[]":
		return true
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err == nil && len(m) == 0 {
		return true
	}
	return false
}
