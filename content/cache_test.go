package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/common/mclock"
	"github.com/rmtbon/contentcache/params"
)

func newTestCache(t *testing.T, rank uint32, opts ...Option) *Cache {
	t.Helper()
	cfg := params.Config{Rank: rank}.WithDefaults()
	require.NoError(t, cfg.Validate())
	c, err := New(cfg, append([]Option{WithClock(new(mclock.Simulated))}, opts...)...)
	require.NoError(t, err)
	return c
}

func digestOf(t *testing.T, c *Cache, b []byte) common.Digest {
	t.Helper()
	return c.Hasher().Sum(b)
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	c := newTestCache(t, 0, WithStorer(&testStorer{}))
	payload := []byte("hello world")

	sw := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw)
	require.True(t, sw.responded)
	require.NoError(t, c.CheckInvariants())

	lw := &testLoadWaiter{}
	c.Load(context.Background(), sw.hash, lw)
	require.True(t, lw.responded)
	require.Equal(t, payload, lw.payload)
	require.Equal(t, c.Hasher().Sum(payload), sw.hash)
}

func TestDropCacheRemovesOnlyCleanEntries(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 1, WithStorer(storer)) // non-root: write-through

	sw := &testStoreWaiter{}
	c.Store(context.Background(), []byte("dirty"), &testOwner{}, sw)
	require.False(t, sw.responded, "non-root store must not answer until upstream completes")
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)

	loader := &testLoader{}
	c2 := newTestCache(t, 0, WithLoader(loader))
	lw := &testLoadWaiter{}
	c2.Load(context.Background(), digestOf(t, c2, []byte("clean")), lw)
	require.Len(t, loader.calls, 1)
	loader.calls[0].cb([]byte("clean"), false, nil)
	require.True(t, lw.responded)
	require.Equal(t, 1, c2.lruCount)

	dropped := c2.DropCache()
	require.Equal(t, 1, dropped)
	require.Equal(t, uint64(0), c2.Stats().ValidEntries)
	require.NoError(t, c2.CheckInvariants())

	// the non-root cache's single dirty entry must survive a dropcache
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)
	dropped = c.DropCache()
	require.Equal(t, 0, dropped)
}

func TestProtocolErrorOnBadDigestWidth(t *testing.T) {
	c := newTestCache(t, 0)
	lw := &testLoadWaiter{}
	c.Load(context.Background(), common.Digest{0x01, 0x02}, lw)
	require.True(t, lw.failed)
	require.ErrorIs(t, lw.err, ProtocolError.AsError())
}
