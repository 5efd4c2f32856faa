package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// maxUnwrapDepth bounds iterative unescaping of JSON-in-string fields.
// Upstream occasionally double-encodes, never deeper than that.
const maxUnwrapDepth = 3

// unwrap peels string-encoded JSON until an array (or anything that is not
// a JSON string) remains.
func unwrap(raw json.RawMessage) []byte {
	data := bytes.TrimSpace(raw)
	for i := 0; i < maxUnwrapDepth; i++ {
		if len(data) == 0 || data[0] != '"' {
			break
		}
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			break
		}
		data = bytes.TrimSpace([]byte(s))
	}
	return data
}

// ParseStringList converges a raw list field to []string. The field may be
// a native JSON array, a JSON-encoded string of one, or doubly escaped.
// Unparseable input yields nil; the store preserves existing data in that
// case rather than overwriting with empty.
func ParseStringList(raw json.RawMessage) []string {
	data := unwrap(raw)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ParseFloatList converges a raw list field to []float64, accepting
// elements that are numbers or numeric strings. Unparseable input yields
// nil.
func ParseFloatList(raw json.RawMessage) []float64 {
	data := unwrap(raw)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}

	out := make([]float64, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			out[i] = v
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil
			}
			out[i] = f
		default:
			return nil
		}
	}
	return out
}
