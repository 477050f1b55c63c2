package jsonpath

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/tidwall/gjson"
)

// Match is one node selected by a query
type Match struct {
	result gjson.Result
}

// Value returns the decoded value of the match
func (m Match) Value() any {
	return m.result.Value()
}

// Raw returns the raw JSON text of the match
func (m Match) Raw() string {
	return m.result.Raw
}

// Matches is the ordered result of a query. An empty Matches means the
// query matched nothing.
type Matches []Match

// First returns the first match. ok is false only when nothing matched; a
// match whose value is null still reports ok.
func (ms Matches) First() (value any, ok bool) {
	if len(ms) == 0 {
		return nil, false
	}
	return ms[0].Value(), true
}

// Values decodes every match
func (ms Matches) Values() []any {
	out := make([]any, len(ms))
	for i, m := range ms {
		out[i] = m.Value()
	}
	return out
}

var cache sync.Map // expr -> *Path

func compileCached(expr string) (*Path, error) {
	if p, ok := cache.Load(expr); ok {
		return p.(*Path), nil
	}
	p, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	cache.Store(expr, p)
	return p, nil
}

// Query evaluates expr against a decoded JSON-like value
func Query(expr string, value any) (Matches, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return QueryBytes(expr, raw)
}

// QueryBytes evaluates expr against raw JSON. The caller is responsible for
// passing valid JSON.
func QueryBytes(expr string, raw []byte) (Matches, error) {
	p, err := compileCached(expr)
	if err != nil {
		return nil, err
	}
	return p.Eval(raw), nil
}

// Eval evaluates the compiled path against raw JSON
func (p *Path) Eval(raw []byte) Matches {
	root := gjson.ParseBytes(raw)
	if !root.Exists() {
		return nil
	}
	nodes := evalSegments([]gjson.Result{root}, p.segments)
	out := make(Matches, len(nodes))
	for i, n := range nodes {
		out[i] = Match{result: n}
	}
	return out
}

func evalSegments(nodes []gjson.Result, segs []segment) []gjson.Result {
	for _, seg := range segs {
		var next []gjson.Result
		for _, n := range nodes {
			if seg.recursive {
				for _, d := range descendants(n) {
					next = append(next, selectFrom(d, seg)...)
				}
				continue
			}
			next = append(next, selectFrom(n, seg)...)
		}
		nodes = next
		if len(nodes) == 0 {
			return nil
		}
	}
	return nodes
}

func selectFrom(n gjson.Result, seg segment) []gjson.Result {
	switch seg.kind {
	case segChild:
		if !n.IsObject() {
			return nil
		}
		var out []gjson.Result
		n.ForEach(func(key, value gjson.Result) bool {
			if key.String() == seg.name {
				out = append(out, value)
				return false
			}
			return true
		})
		return out
	case segIndex:
		if !n.IsArray() {
			return nil
		}
		arr := n.Array()
		i := seg.index
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return nil
		}
		return []gjson.Result{arr[i]}
	case segWildcard:
		return children(n)
	case segFilter:
		var out []gjson.Result
		for _, c := range children(n) {
			if seg.filter.match(c) {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

func children(n gjson.Result) []gjson.Result {
	if !n.IsArray() && !n.IsObject() {
		return nil
	}
	var out []gjson.Result
	n.ForEach(func(_, value gjson.Result) bool {
		out = append(out, value)
		return true
	})
	return out
}

// descendants returns n and every node beneath it in document order
func descendants(n gjson.Result) []gjson.Result {
	out := []gjson.Result{n}
	for _, c := range children(n) {
		out = append(out, descendants(c)...)
	}
	return out
}

func (f *filter) match(n gjson.Result) bool {
	nodes := evalSegments([]gjson.Result{n}, f.field)
	if len(nodes) == 0 {
		return false
	}
	if !f.hasLit {
		return Truthy(nodes[0].Value())
	}

	left := nodes[0].Value()
	switch f.op {
	case "==":
		return looseEqual(left, f.lit)
	case "!=":
		return !looseEqual(left, f.lit)
	}

	cmp, ok := compare(left, f.lit)
	if !ok {
		return false
	}
	switch f.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b any) (int, bool) {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truthy reports whether v counts as a usable value. nil, false, 0, NaN and
// the empty string are falsy; everything else, including empty arrays and
// objects, is truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	}
	return true
}
