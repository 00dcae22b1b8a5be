// ABOUTME: Tests for Ref handles and the AssociationCache
// ABOUTME: Verifies overwrite semantics, stale-miss behavior, and cleanup sweeps

package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelegate implements Delegate for tests.
type fakeDelegate struct {
	id    int
	title string
	url   string
}

func (d *fakeDelegate) ID() int       { return d.id }
func (d *fakeDelegate) Title() string { return d.title }
func (d *fakeDelegate) URL() string   { return d.url }
func (d *fakeDelegate) Text(ctx context.Context) (string, error) {
	return "page text", nil
}

func newTestCache(t *testing.T, window time.Duration) *AssociationCache {
	t.Helper()
	c := NewAssociationCache(window, time.Hour, nil) // sweeps driven manually
	t.Cleanup(c.Close)
	return c
}

func TestRef_InvalidateReadsNil(t *testing.T) {
	d := &fakeDelegate{id: 1}
	ref := NewRef(d)

	require.True(t, ref.Alive())
	assert.Equal(t, d, ref.Get())

	ref.Invalidate()
	assert.False(t, ref.Alive())
	assert.Nil(t, ref.Get())

	// Idempotent
	ref.Invalidate()
	assert.Nil(t, ref.Get())
}

func TestRef_ZeroValue(t *testing.T) {
	var ref Ref
	assert.Nil(t, ref.Get())
	assert.False(t, ref.Alive())
	ref.Invalidate() // must not panic
}

func TestAssociationCache_OverwriteNotMerge(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ref := NewRef(&fakeDelegate{id: 7})

	c.Associate(7, "conversation-a", ref)
	uuid, ok := c.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, "conversation-a", uuid)

	c.Associate(7, "conversation-b", ref)
	uuid, ok = c.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, "conversation-b", uuid)
	assert.Equal(t, 1, c.Len())
}

func TestAssociationCache_ResolveMiss(t *testing.T) {
	c := newTestCache(t, time.Minute)
	_, ok := c.Resolve(42)
	assert.False(t, ok)
}

func TestAssociationCache_Disassociate(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.Associate(1, "conv", NewRef(&fakeDelegate{id: 1}))
	c.Disassociate(1)
	_, ok := c.Resolve(1)
	assert.False(t, ok)
}

func TestAssociationCache_DisassociateConversation(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.Associate(1, "conv-a", NewRef(&fakeDelegate{id: 1}))
	c.Associate(2, "conv-a", NewRef(&fakeDelegate{id: 2}))
	c.Associate(3, "conv-b", NewRef(&fakeDelegate{id: 3}))

	c.DisassociateConversation("conv-a")

	_, ok := c.Resolve(1)
	assert.False(t, ok)
	_, ok = c.Resolve(2)
	assert.False(t, ok)
	uuid, ok := c.Resolve(3)
	require.True(t, ok)
	assert.Equal(t, "conv-b", uuid)
}

func TestAssociationCache_SweepsDeadEntriesPastWindow(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ref := NewRef(&fakeDelegate{id: 1})
	c.Associate(1, "conv", ref)

	now := time.Now()

	// Alive entries are never swept.
	c.runCleanup(now)
	c.runCleanup(now.Add(time.Hour))
	_, ok := c.Resolve(1)
	require.True(t, ok)

	// First sweep after death records the time, second sweep past the
	// window removes.
	ref.Invalidate()
	c.runCleanup(now.Add(time.Hour))
	_, ok = c.Resolve(1)
	require.True(t, ok, "entry inside the cleanup window must survive")

	c.runCleanup(now.Add(time.Hour + 30*time.Second))
	_, ok = c.Resolve(1)
	require.True(t, ok, "still inside the window")

	c.runCleanup(now.Add(time.Hour + 2*time.Minute))
	_, ok = c.Resolve(1)
	assert.False(t, ok, "entry past the window must be swept")
}

func TestAssociationCache_MarkGoneStartsWindowImmediately(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ref := NewRef(&fakeDelegate{id: 1})
	c.Associate(1, "conv", ref)
	ref.Invalidate()

	// Without MarkGone the first sweep would only record the death; with it
	// the window is already running.
	c.MarkGone(1)
	c.runCleanup(time.Now().Add(2 * time.Minute))

	_, ok := c.Resolve(1)
	assert.False(t, ok)

	c.MarkGone(42) // unknown ids are a no-op
}

func TestAssociationCache_RevivedRefResetsClock(t *testing.T) {
	c := newTestCache(t, time.Minute)

	// Re-associating fresh content under the same id resets the entry.
	dead := NewRef(&fakeDelegate{id: 1})
	dead.Invalidate()
	c.Associate(1, "conv", dead)

	now := time.Now()
	c.runCleanup(now)

	live := NewRef(&fakeDelegate{id: 1})
	c.Associate(1, "conv", live)
	c.runCleanup(now.Add(2 * time.Minute))

	_, ok := c.Resolve(1)
	assert.True(t, ok)
}
