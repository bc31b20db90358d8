package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	previewLimit = 500
	jsonFence    = "```json"
	closingFence = "```"
)

var errNotObject = errors.New("response is not a JSON object")

// Repair recovers a JSON object from a model reply. The whole reply is parsed
// first; failing that, the body of the first ```json fence is parsed. On
// failure the returned *MalformedResponseError carries the error of the first
// attempt. Repair performs no I/O.
func Repair(raw string) (map[string]any, error) {
	obj, parseErr := decodeObject(raw)
	if parseErr == nil {
		return obj, nil
	}

	if start := strings.Index(raw, jsonFence); start >= 0 {
		rest := raw[start+len(jsonFence):]
		if end := strings.Index(rest, closingFence); end >= 0 {
			if obj, err := decodeObject(strings.TrimSpace(rest[:end])); err == nil {
				return obj, nil
			}
		}
	}

	return nil, &MalformedResponseError{Err: parseErr, Preview: preview(raw)}
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// preview returns at most previewLimit runes of s.
func preview(s string) string {
	n := 0
	for i := range s {
		if n == previewLimit {
			return s[:i]
		}
		n++
	}
	return s
}
