// Package datamap implements the ordered key/value mapping that flows through
// a pipeline run. Insertion order is part of the value: it survives merges,
// the worker wire codec and JSON encoding.
package datamap

import (
	"sort"
)

// Map is an ordered mapping from string keys to process-interchangeable
// values: nil, bool, integers, floats, strings, []any, map[string]any and
// nested *Map.
//
// A Map is not safe for concurrent use. During a run it has exactly one
// writer, the pipeline's own goroutine.
type Map struct {
	keys   []string
	values map[string]any
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]any)}
}

// FromMap builds a Map from a plain Go map. Keys are inserted in sorted order
// because Go maps carry no order of their own.
func FromMap(src map[string]any) *Map {
	m := New()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}

// Len returns the number of keys. A nil Map is empty.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for every entry in order until fn returns false.
func (m *Map) Range(fn func(key string, value any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Merge copies every entry of other into m, in other's order. Keys already
// present are overwritten in place, so the last merged map wins.
func (m *Map) Merge(other *Map) {
	other.Range(func(key string, value any) bool {
		m.Set(key, value)
		return true
	})
}

// Clone returns a deep value copy of m, produced through the wire codec so
// that it matches exactly what an isolated worker would receive.
func (m *Map) Clone() (*Map, error) {
	raw, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Lookup resolves a dotted path ("a.b.c") through nested *Map and
// map[string]any values.
func Lookup(m *Map, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current, ok := m.Get(path[0])
	if !ok {
		return nil, false
	}
	for _, part := range path[1:] {
		switch node := current.(type) {
		case *Map:
			current, ok = node.Get(part)
		case map[string]any:
			current, ok = node[part]
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Plain converts m into nested native Go values for libraries that do not
// know about Map. Order is lost.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(key string, value any) bool {
		out[key] = plainValue(value)
		return true
	})
	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case *Map:
		return val.Plain()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
