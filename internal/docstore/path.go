package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize converts a document to its canonical JSON form so every driver
// hands back the same value types (float64 numbers, map[string]any objects).
func Normalize(d Doc) (Doc, error) {
	if d == nil {
		return Doc{}, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("docstore: normalize: %w", err)
	}
	var out Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: normalize: %w", err)
	}
	return out, nil
}

// Clone deep-copies a normalized document.
func Clone(d Doc) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Clone(Doc(t)))
	case Doc:
		return map[string]any(Clone(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// SplitPath splits a dotted field path and rejects empty segments.
func SplitPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("docstore: invalid field path %q", path)
		}
	}
	return parts, nil
}

// SetPath writes value at a dotted path, creating intermediate objects.
func SetPath(d Doc, path string, value any) error {
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}
	cur := map[string]any(d)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// GetPath reads the value at a dotted path.
func GetPath(d Doc, path string) (any, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	var cur any = map[string]any(d)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ApplyMerge returns a copy of d with the dotted fields written.
func ApplyMerge(d Doc, fields map[string]any) (Doc, error) {
	patch, err := Normalize(Doc(fields))
	if err != nil {
		return nil, err
	}
	out := Clone(d)
	if out == nil {
		out = Doc{}
	}
	for path, v := range patch {
		if err := SetPath(out, path, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
