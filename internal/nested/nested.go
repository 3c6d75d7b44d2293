// Package nested walks the configuration document: a mapping of groups to
// assets to parameters (and, for storages, sub-assets), where every domain
// value is a {value, unit} record. Validation, KPI aggregation and parameter
// sweeps all go through these helpers instead of hand-rolled recursion.
package nested

import (
	"fmt"
	"sort"
	"strings"
)

const (
	ValueKey = "value"
	UnitKey  = "unit"
)

// MaxDepth is the deepest nesting the configuration uses
// (group, asset, sub-asset, parameter).
const MaxDepth = 4

// Cloner is implemented by leaf values that need a deep copy (e.g. series).
type Cloner interface {
	CloneValue() any
}

// IsLeaf reports whether v is a {value, unit} parameter record.
func IsLeaf(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[ValueKey]
	return ok
}

// Leaf builds a parameter record.
func Leaf(value any, unit string) map[string]any {
	return map[string]any{ValueKey: value, UnitKey: unit}
}

// Value unwraps a parameter record; other values are returned as is.
func Value(v any) any {
	if m, ok := v.(map[string]any); ok {
		if x, ok := m[ValueKey]; ok {
			return x
		}
	}
	return v
}

// Keys returns the keys of m in lexical order so that walks are reproducible.
func Keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Path renders a path for messages.
func Path(path []string) string {
	return strings.Join(path, ".")
}

// Crawl calls fn for every parameter record found at most maxDepth levels
// below root. Plain (non-record) scalars are visited too, wrapped in a record
// with an empty unit, so callers see every leaf.
func Crawl(root map[string]any, maxDepth int, fn func(path []string, leaf map[string]any)) {
	crawl(root, nil, maxDepth, fn)
}

func crawl(m map[string]any, prefix []string, depth int, fn func([]string, map[string]any)) {
	if depth <= 0 {
		return
	}
	for _, k := range Keys(m) {
		path := append(append([]string(nil), prefix...), k)
		switch v := m[k].(type) {
		case map[string]any:
			if IsLeaf(v) {
				fn(path, v)
				continue
			}
			crawl(v, path, depth-1, fn)
		case nil:
			fn(path, Leaf(nil, ""))
		default:
			fn(path, Leaf(v, ""))
		}
	}
}

// FindByKey returns the path of every occurrence of key, depth first in
// lexical order. The returned paths end with key.
func FindByKey(root map[string]any, key string) [][]string {
	var out [][]string
	var walk func(m map[string]any, prefix []string, depth int)
	walk = func(m map[string]any, prefix []string, depth int) {
		if depth <= 0 {
			return
		}
		for _, k := range Keys(m) {
			path := append(append([]string(nil), prefix...), k)
			if k == key {
				out = append(out, path)
			}
			if sub, ok := m[k].(map[string]any); ok && !IsLeaf(sub) {
				walk(sub, path, depth-1)
			}
		}
	}
	walk(root, nil, MaxDepth+1)
	return out
}

// Get returns the value at path.
func Get(root map[string]any, path ...string) (any, bool) {
	var cur any = root
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetMap returns the mapping at path.
func GetMap(root map[string]any, path ...string) (map[string]any, bool) {
	v, ok := Get(root, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Set writes v at path. Intermediate mappings must exist; the final key is
// created if missing. When the target is a parameter record, only its value
// is replaced so the unit survives.
func Set(root map[string]any, path []string, v any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	parent, ok := GetMap(root, path[:len(path)-1]...)
	if !ok {
		return fmt.Errorf("path %s: parent is not a mapping", Path(path))
	}
	last := path[len(path)-1]
	if cur, ok := parent[last].(map[string]any); ok && IsLeaf(cur) && !IsLeaf(v) {
		cur[ValueKey] = v
		return nil
	}
	parent[last] = v
	return nil
}

// DeepCopy copies mappings, lists and cloneable leaves.
func DeepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = DeepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = DeepCopy(vv)
		}
		return out
	case []float64:
		return append([]float64(nil), x...)
	case Cloner:
		return x.CloneValue()
	default:
		return v
	}
}

// CopyMap deep-copies a document.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return DeepCopy(m).(map[string]any)
}
