package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler func() string

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry[handler]()
	require.NoError(t, r.Register("a", func() string { return "first" }))
	require.NoError(t, r.Register("a", func() string { return "second" }))

	h, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "second", h())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryEmptyName(t *testing.T) {
	r := NewRegistry[handler]()
	assert.ErrorIs(t, r.Register("", func() string { return "" }), ErrEmptyName)
	assert.Equal(t, 0, r.Len())

	err := r.RegisterAll(map[string]handler{
		"":  func() string { return "" },
		"b": func() string { return "b" },
	})
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, []string{"b"}, r.Names())
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry[handler]()
	require.NoError(t, r.RegisterAll(map[string]handler{
		"a": func() string { return "a" },
		"b": func() string { return "b" },
		"c": func() string { return "c" },
	}))

	r.Unregister("missing")
	r.Unregister("a")
	_, ok := r.Lookup("a")
	assert.False(t, ok)

	r.UnregisterAll("b")
	assert.Equal(t, []string{"c"}, r.Names())

	require.NoError(t, r.Register("d", func() string { return "d" }))
	r.UnregisterAll()
	assert.Empty(t, r.Names())
}
