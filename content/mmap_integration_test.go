package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmtbon/contentcache/content/mmap"
)

func mustWriteFile(t *testing.T, contents []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

// TestMmapLoadServesAndRevalidates: a root cache
// with a mapped region serves a load straight out of the mapping,
// marking the entry ephemeral, and a subsequent on-disk mutation is
// caught on the next load (Invalid) since a mmapped entry is
// revalidated against the live file every time.
func TestMmapLoadServesAndRevalidates(t *testing.T) {
	const blobSize = 4
	path := mustWriteFile(t, []byte("AAAABBBB")) // two blobs of 4 bytes

	c := newTestCache(t, 0)
	table := mmap.NewTable(c.Hasher())
	digests, err := table.Map(path, blobSize)
	require.NoError(t, err)
	require.Len(t, digests, 2)
	c.mmapSource = NewMmapSource(table)

	lw := &testLoadWaiter{}
	c.Load(context.Background(), digests[0], lw)
	require.True(t, lw.responded)
	require.Equal(t, []byte("AAAA"), lw.payload)
	require.True(t, lw.ephemeral, "mmap-sourced entries are ephemeral")
	require.NoError(t, c.CheckInvariants())

	// Mutate the backing file in place; the next load must revalidate
	// against the live bytes and notice the mismatch.
	require.NoError(t, os.WriteFile(path, []byte("ZZZZBBBB"), 0o644))

	lw2 := &testLoadWaiter{}
	c.Load(context.Background(), digests[0], lw2)
	require.True(t, lw2.failed)
	require.ErrorIs(t, lw2.err, Invalid.AsError())
}

// TestUnmapKeepsLiveEntryUsable: unmapping a path while a cache entry
// still borrows from its region must leave that entry fully usable; only
// fresh misses lose the mapping, and dropping the entry is what finally
// releases the region.
func TestUnmapKeepsLiveEntryUsable(t *testing.T) {
	const blobSize = 4
	path := mustWriteFile(t, []byte("AAAABBBB"))

	c := newTestCache(t, 0)
	table := mmap.NewTable(c.Hasher())
	digests, err := table.Map(path, blobSize)
	require.NoError(t, err)
	c.mmapSource = NewMmapSource(table)

	lw := &testLoadWaiter{}
	c.Load(context.Background(), digests[0], lw)
	require.True(t, lw.responded)

	require.NoError(t, table.Unmap(path))

	lw2 := &testLoadWaiter{}
	c.Load(context.Background(), digests[1], lw2)
	require.True(t, lw2.failed, "unmapped digests no longer resolve for fresh misses")

	lw3 := &testLoadWaiter{}
	c.Load(context.Background(), digests[0], lw3)
	require.True(t, lw3.responded, "the cached entry keeps its own region reference")
	require.Equal(t, []byte("AAAA"), lw3.payload)

	require.Equal(t, 1, c.DropCache())
	require.Nil(t, c.lookup(digests[0]))
	require.NoError(t, c.CheckInvariants())
}

// TestMmapEntryReplacedByStore: a store landing on
// a hash currently served by an ephemeral mmap entry must evict the
// borrowed-bytes entry and create a fresh, independently owned one
// rather than mutate memory it doesn't own.
func TestMmapEntryReplacedByStore(t *testing.T) {
	const blobSize = 4
	path := mustWriteFile(t, []byte("AAAABBBB"))

	c := newTestCache(t, 0, WithStorer(&testStorer{}))
	table := mmap.NewTable(c.Hasher())
	digests, err := table.Map(path, blobSize)
	require.NoError(t, err)
	c.mmapSource = NewMmapSource(table)

	lw := &testLoadWaiter{}
	c.Load(context.Background(), digests[0], lw)
	require.True(t, lw.responded)
	e := c.lookup(digests[0])
	require.True(t, e.ephemeral())

	// A store of the very same bytes under the same digest must replace
	// the ephemeral entry with a normal dirty one.
	sw := &testStoreWaiter{}
	c.Store(context.Background(), []byte("AAAA"), &testOwner{}, sw)
	require.True(t, sw.responded)
	require.Equal(t, digests[0], sw.hash)

	e2 := c.lookup(digests[0])
	require.False(t, e2.ephemeral())
	require.True(t, e2.dirty())
	require.NoError(t, c.CheckInvariants())
}
