package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushOnCleanCacheRespondsImmediately(t *testing.T) {
	c := newTestCache(t, 0, WithStorer(&testStorer{}))
	fw := &testFlushWaiter{}
	c.Flush(context.Background(), fw)
	require.True(t, fw.responded)
}

func TestFlushRootWithoutBackingIsNotImplemented(t *testing.T) {
	c := newTestCache(t, 0)
	sw := &testStoreWaiter{}
	c.Store(context.Background(), []byte("x"), &testOwner{}, sw)
	require.True(t, sw.responded)
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)

	fw := &testFlushWaiter{}
	c.Flush(context.Background(), fw)
	require.True(t, fw.failed)
	require.ErrorIs(t, fw.err, NotImplemented.AsError())
}

// TestFlushOrdering: concurrent in-flight backing
// stores never exceed FlushBatchLimit, and a flush issued while dirties
// remain only completes once every one of them has drained.
func TestFlushOrdering(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 0, WithStorer(storer))
	c.cfg.FlushBatchLimit = 4

	const total = 10
	var waiters []*testStoreWaiter
	for i := 0; i < total; i++ {
		w := &testStoreWaiter{}
		c.Store(context.Background(), []byte{byte(i)}, &testOwner{}, w)
		waiters = append(waiters, w)
		require.True(t, w.responded, "root write-back answers immediately")
		require.LessOrEqual(t, c.flushInFlight, c.cfg.FlushBatchLimit)
	}
	require.Equal(t, uint32(4), c.flushInFlight)
	require.Equal(t, uint32(total)-4, c.flushQueueLen)

	fw := &testFlushWaiter{}
	c.Flush(context.Background(), fw)
	require.False(t, fw.responded, "dirties remain, flush must wait")

	// drain the queue, completing exactly one store at a time and
	// re-checking the batch-limit invariant after each settle.
	completed := 0
	for completed < total {
		require.LessOrEqual(t, c.flushInFlight, c.cfg.FlushBatchLimit)
		call := storer.calls[completed]
		call.cb(c.Hasher().Sum(call.payload), nil)
		completed++
	}

	require.True(t, fw.responded)
	require.Equal(t, uint64(0), c.Stats().DirtyEntries)
	require.NoError(t, c.CheckInvariants())
}
