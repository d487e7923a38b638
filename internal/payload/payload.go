// Package payload provides path-addressed access into the semi-structured
// survey payloads carried by monitoring submissions. Survey data arrives
// with inconsistent typing (numbers as strings, missing groups, nulls), so
// every accessor takes a default and never fails.
package payload

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is a decoded json_ext tree.
type Payload map[string]any

// Decode parses a raw json_ext column value. A missing or malformed payload
// decodes to an empty tree, matching how the source system treats it.
func Decode(raw []byte) Payload {
	if len(raw) == 0 {
		return Payload{}
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}
	}
	if p == nil {
		return Payload{}
	}
	return p
}

// Get resolves a dotted or slashed path ("groupe_epargne.valeur_epargne",
// "groupe_ben/code_menage") into the tree. A missing path returns
// (nil, false), never an error.
func (p Payload) Get(path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}

	var cur any = map[string]any(p)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or def when missing or not a string.
func (p Payload) String(path, def string) string {
	v, ok := p.Get(path)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Float returns the numeric value at path with safe coercion: numbers pass
// through, numeric strings are parsed, anything else yields def.
func (p Payload) Float(path string, def float64) float64 {
	v, ok := p.Get(path)
	if !ok {
		return def
	}
	return CoerceFloat(v, def)
}

// Int is Float truncated to an integer.
func (p Payload) Int(path string, def int) int {
	return int(p.Float(path, float64(def)))
}

// CoerceFloat normalizes a heterogeneous scalar into a float64. Non-numeric
// and nil inputs yield def rather than an error; type noise in field data
// must never propagate up to the orchestrator.
func CoerceFloat(v any, def float64) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func splitPath(path string) []string {
	raw := strings.FieldsFunc(path, func(r rune) bool {
		return r == '.' || r == '/'
	})
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
