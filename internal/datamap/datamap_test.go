package datamap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetKeepsPosition(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestMap_MergeIsLastWriterWins(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	first := New()
	first.Set("x", 1)
	second := New()
	second.Set("x", 2)
	second.Set("y", 3)

	// --- Act ---
	shared := New()
	shared.Merge(first)
	shared.Merge(second)

	// --- Assert ---
	assert.Equal(t, []string{"x", "y"}, shared.Keys())
	x, _ := shared.Get("x")
	y, _ := shared.Get("y")
	assert.Equal(t, 2, x)
	assert.Equal(t, 3, y)
}

func TestMap_Delete(t *testing.T) {
	t.Parallel()

	m := New()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	assert.True(t, m.Delete("b"))
	assert.False(t, m.Delete("missing"))
	assert.Equal(t, []string{"a", "c"}, m.Keys())
	assert.Equal(t, 2, m.Len())
}

func TestMap_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var m *Map
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
	_, ok := m.Get("any")
	assert.False(t, ok)
}

func TestFromMap_SortsKeys(t *testing.T) {
	t.Parallel()

	m := FromMap(map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, m.Keys())
}

func TestClone_PreservesOrderAndIsIndependent(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	nested := New()
	nested.Set("second", "b")
	nested.Set("first", "a")

	original := New()
	original.Set("name", "flowgrid")
	original.Set("count", 7)
	original.Set("ratio", 0.5)
	original.Set("ok", true)
	original.Set("none", nil)
	original.Set("list", []any{1, "two", 3.5})
	original.Set("nested", nested)

	// --- Act ---
	clone, err := original.Clone()
	require.NoError(t, err)
	clone.Set("name", "changed")

	// --- Assert ---
	assert.Equal(t, original.Keys(), clone.Keys())

	name, _ := original.Get("name")
	assert.Equal(t, "flowgrid", name, "mutating the clone must not reach the original")

	count, _ := clone.Get("count")
	assert.Equal(t, int64(7), count)
	ratio, _ := clone.Get("ratio")
	assert.Equal(t, 0.5, ratio)
	none, _ := clone.Get("none")
	assert.Nil(t, none)
	list, _ := clone.Get("list")
	assert.Equal(t, []any{int64(1), "two", 3.5}, list)

	clonedNested, _ := clone.Get("nested")
	require.IsType(t, &Map{}, clonedNested)
	assert.Equal(t, []string{"second", "first"}, clonedNested.(*Map).Keys())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	inner := New()
	inner.Set("leaf", 42)
	m := New()
	m.Set("outer", map[string]any{"inner": inner})

	v, ok := Lookup(m, []string{"outer", "inner", "leaf"})
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = Lookup(m, []string{"outer", "missing"})
	assert.False(t, ok)
	_, ok = Lookup(m, nil)
	assert.False(t, ok)
}

func TestPlain_ConvertsNestedMaps(t *testing.T) {
	t.Parallel()

	inner := New()
	inner.Set("x", int64(1))
	m := New()
	m.Set("inner", inner)
	m.Set("list", []any{inner, "s"})

	assert.Equal(t, map[string]any{
		"inner": map[string]any{"x": int64(1)},
		"list":  []any{map[string]any{"x": int64(1)}, "s"},
	}, m.Plain())
}
