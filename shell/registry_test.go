package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/portalshell/errext"
)

func ids(ids ...string) func() (string, error) {
	return func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
}

func src(portalID string) (string, error) { return "https://shell.example/?portal=" + portalID, nil }

func TestRegistryOpen(t *testing.T) {
	t.Parallel()

	r := NewRegistry(0, ids("a", "a", "", "b", "c", "d", "e"))
	a, err := r.Open(nil, src)
	require.NoError(t, err)
	b, err := r.Open(a, src)
	require.NoError(t, err)

	assert.Equal(t, "a", a.PortalID)
	assert.Equal(t, "b", b.PortalID, "colliding and empty ids are skipped")
	assert.Equal(t, "https://shell.example/?portal=b", b.Src())
	assert.Equal(t, a, b.Owner())
	assert.Equal(t, -1, b.zIndex)
	assert.Equal(t, -200, b.tiltZ)

	_, err = r.Open(nil, src)
	require.NoError(t, err)
	_, err = r.Open(nil, src)
	require.NoError(t, err)
	assert.Equal(t, DefaultFrameCap, r.Len())

	_, err = r.Open(nil, src)
	require.ErrorIs(t, err, ErrResourceLimit)
	var hinted errext.HasHint
	require.ErrorAs(t, err, &hinted)
	assert.Equal(t, "this indicates a portal bug", hinted.Hint())
	assert.Equal(t, DefaultFrameCap, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry(8, ids("a", "b", "c", "d", "e"))
	a, _ := r.Open(nil, src)
	b, _ := r.Open(a, src)
	c, _ := r.Open(b, src)
	d, _ := r.Open(b, src)
	e, _ := r.Open(nil, src)
	a.setOwner(e)

	// the primary is only unlinked
	assert.Empty(t, r.Remove(a, a))
	assert.Nil(t, a.Owner())
	assert.Empty(t, e.owned)
	assert.Equal(t, 5, r.Len())

	removed := r.Remove(b, a)
	assert.Equal(t, []*Frame{b, c, d}, removed)
	assert.Empty(t, a.owned)
	assert.Nil(t, r.Get("c"))
	assert.Equal(t, []*Frame{a, e}, r.Frames())

	assert.Empty(t, r.Remove(b, a), "removing twice is a no-op")
}

func TestRegistryRemoveStopsAtPrimary(t *testing.T) {
	t.Parallel()

	r := NewRegistry(8, ids("a", "b", "c"))
	a, _ := r.Open(nil, src)
	b, _ := r.Open(a, src)
	c, _ := r.Open(b, src)
	a.setOwner(b)

	// b owns a, the primary, which survives the cascade
	removed := r.Remove(b, c)
	assert.Equal(t, []*Frame{b, a}, removed)
	assert.Equal(t, []*Frame{c}, r.Frames())
	assert.Nil(t, c.Owner())
}

func TestRegistryFind(t *testing.T) {
	t.Parallel()

	r := NewRegistry(0, ids("a", "b"))
	a, _ := r.Open(nil, src)
	b, _ := r.Open(nil, src)

	assert.Equal(t, b, r.Find(func(f *Frame) bool { return f != a }))
	assert.Nil(t, r.Find(func(*Frame) bool { return false }))
}
