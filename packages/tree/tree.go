// Package tree reads and writes nested values in generic JSON-like trees
// (map[string]any, []any and scalars), addressed by dot/bracket paths such
// as "user.id" or "input.items[0].name".
//
// The package knows nothing about serialization; callers decode first and
// encode afterwards.
package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: either an object key or an array index
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// ParsePath splits a dot/bracket path. A leading "$." is ignored so JSONPath
// style addresses are accepted too.
func ParsePath(path string) ([]Segment, error) {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segs []Segment
	for len(p) > 0 {
		switch p[0] {
		case '.':
			p = p[1:]
			if p == "" || p[0] == '.' {
				return nil, fmt.Errorf("empty segment in path %q", path)
			}
		case '[':
			end := strings.IndexByte(p, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated '[' in path %q", path)
			}
			inner := p[1:end]
			p = p[end+1:]
			if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0] {
				segs = append(segs, Segment{Key: inner[1 : len(inner)-1]})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid index [%s] in path %q", inner, path)
			}
			segs = append(segs, Segment{Index: n, IsIndex: true})
		default:
			end := strings.IndexAny(p, ".[")
			if end < 0 {
				end = len(p)
			}
			key := p[:end]
			p = p[end:]
			// a bare numeric key addresses an array element, as lodash does
			if n, err := strconv.Atoi(key); err == nil && n >= 0 {
				segs = append(segs, Segment{Key: key, Index: n, IsIndex: true})
				continue
			}
			segs = append(segs, Segment{Key: key})
		}
	}
	return segs, nil
}

// Lookup returns the value at path and whether it exists
func Lookup(root any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}

	cur := root
	for _, seg := range segs {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Exists reports whether path addresses an existing node
func Exists(root any, path string) bool {
	_, ok := Lookup(root, path)
	return ok
}

func child(node any, seg Segment) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		key := seg.Key
		if key == "" && seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		v, ok := n[key]
		return v, ok
	case []any:
		if !seg.IsIndex || seg.Index >= len(n) {
			return nil, false
		}
		return n[seg.Index], true
	}
	return nil, false
}

// Set writes value at path and returns the (possibly new) root. Missing
// intermediate nodes are created: an array when the following segment is an
// index, an object otherwise. Arrays grow with nil padding as needed.
func Set(root any, path string, value any) (any, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return root, err
	}
	return set(root, segs, value, path)
}

func set(node any, segs []Segment, value any, path string) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	seg, rest := segs[0], segs[1:]

	if node == nil {
		if seg.IsIndex {
			node = []any{}
		} else {
			node = map[string]any{}
		}
	}

	switch n := node.(type) {
	case map[string]any:
		key := seg.Key
		if key == "" {
			key = strconv.Itoa(seg.Index)
		}
		updated, err := set(n[key], rest, value, path)
		if err != nil {
			return node, err
		}
		n[key] = updated
		return n, nil
	case []any:
		if !seg.IsIndex {
			return node, fmt.Errorf("cannot set key %q on an array in path %q", seg.Key, path)
		}
		for len(n) <= seg.Index {
			n = append(n, nil)
		}
		updated, err := set(n[seg.Index], rest, value, path)
		if err != nil {
			return node, err
		}
		n[seg.Index] = updated
		return n, nil
	default:
		// a scalar in the way is replaced by a fresh container
		return set(nil, segs, value, path)
	}
}

// Clone deep-copies maps and slices so a working copy can be mutated without
// touching the original
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	}
	return v
}
