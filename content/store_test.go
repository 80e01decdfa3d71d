package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWriteThroughAtNonRoot: a non-root store must
// start exactly one upstream store and only answer the caller once that
// upstream store completes.
func TestWriteThroughAtNonRoot(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 1, WithStorer(storer))
	payload := []byte("abc")

	sw := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw)

	require.Len(t, storer.calls, 1)
	require.False(t, sw.responded, "write-through answers only after upstream completes")

	storer.calls[0].cb(c.Hasher().Sum(payload), nil)

	require.True(t, sw.responded)
	require.Equal(t, c.Hasher().Sum(payload), sw.hash)
	st := c.Stats()
	require.Equal(t, uint64(1), st.ValidEntries)
	require.Equal(t, uint64(0), st.DirtyEntries)
	require.Equal(t, uint64(len(payload)), st.SizeBytes)
	require.NoError(t, c.CheckInvariants())
}

// TestWriteBackAtRootWithBacking: a root store
// with a backing store returns the digest immediately while the entry
// is dirty, then settles once the backing store's own store completes.
func TestWriteBackAtRootWithBacking(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 0, WithStorer(storer))
	payload := []byte("abc")

	sw := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw)
	require.True(t, sw.responded, "write-back answers immediately")
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)
	require.Len(t, storer.calls, 1)

	storer.calls[0].cb(c.Hasher().Sum(payload), nil)

	require.Equal(t, uint64(0), c.Stats().DirtyEntries)
	e := c.lookup(c.Hasher().Sum(payload))
	require.True(t, e.linked, "clean entry belongs on the LRU")
	require.NoError(t, c.CheckInvariants())
}

// TestSecondConcurrentStoreAtRootAnswersImmediately guards the
// step 6's root write-back guarantee for the coalescing path: a second
// store of identical bytes while the first is still dirty and in flight
// must still get an immediate response at root, not block until the
// first store's backing completion fires clearDirty.
func TestSecondConcurrentStoreAtRootAnswersImmediately(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 0, WithStorer(storer))
	payload := []byte("abc")

	sw1 := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw1)
	require.True(t, sw1.responded, "write-back answers immediately")
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)

	sw2 := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw2)
	require.True(t, sw2.responded, "a second root store of the same dirty entry must also answer immediately")
	require.Equal(t, c.Hasher().Sum(payload), sw2.hash)
	require.NoError(t, c.CheckInvariants())
}

func TestStorePayloadTooLargeBoundary(t *testing.T) {
	const limit = 8
	c := newTestCache(t, 0)
	c.cfg.BlobSizeLimit = limit

	ok := make([]byte, limit)
	sw := &testStoreWaiter{}
	c.Store(context.Background(), ok, &testOwner{}, sw)
	require.True(t, sw.responded)
	require.False(t, sw.failed)

	tooBig := make([]byte, limit+1)
	owner := &testOwner{}
	sw2 := &testStoreWaiter{}
	c.Store(context.Background(), tooBig, owner, sw2)
	require.True(t, sw2.failed)
	require.ErrorIs(t, sw2.err, PayloadTooLarge.AsError())
	require.Equal(t, 1, owner.released, "rejected payload's owner must still be released")
}

func TestStoreCompletionIntegrityMismatchRetriesAtRoot(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 0, WithStorer(storer))
	payload := []byte("abc")

	sw := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw)
	require.True(t, sw.responded)
	require.Len(t, storer.calls, 1)

	wrongDigest := c.Hasher().Sum([]byte("not-abc"))
	storer.calls[0].cb(wrongDigest, nil)

	require.Equal(t, uint64(1), c.Stats().DirtyEntries, "the bytes stay dirty for a retry")
	require.Len(t, storer.calls, 2, "a mismatched digest re-queues the entry for retry")

	storer.calls[1].cb(c.Hasher().Sum(payload), nil)
	require.Equal(t, uint64(0), c.Stats().DirtyEntries)
	require.NoError(t, c.CheckInvariants())
}

// TestNonRootStoresAreNotBatchLimited: FlushBatchLimit bounds only the
// root's write-back drain; distinct-hash write-throughs at a non-root
// node all start upstream immediately, however many are in flight.
func TestNonRootStoresAreNotBatchLimited(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 1, WithStorer(storer))
	c.cfg.FlushBatchLimit = 2

	var waiters []*testStoreWaiter
	for i := 0; i < 5; i++ {
		w := &testStoreWaiter{}
		c.Store(context.Background(), []byte{byte(i)}, &testOwner{}, w)
		waiters = append(waiters, w)
	}
	require.Len(t, storer.calls, 5, "every write-through starts upstream immediately")
	require.Equal(t, uint32(0), c.flushQueueLen, "the flush queue is a root-only mechanism")

	for _, call := range storer.calls {
		call.cb(c.Hasher().Sum(call.payload), nil)
	}
	for _, w := range waiters {
		require.True(t, w.responded)
	}
	require.Equal(t, uint64(0), c.Stats().DirtyEntries)
	require.NoError(t, c.CheckInvariants())
}

// A failed non-root write-through answers its waiters with the error
// and leaves the entry dirty but unqueued; the next store of the same
// bytes restarts the upstream store rather than any flush-queue retry.
func TestNonRootStoreFailureLeavesDirtyForAFreshStore(t *testing.T) {
	storer := &testStorer{}
	c := newTestCache(t, 1, WithStorer(storer))
	payload := []byte("abc")

	sw := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw)
	require.Len(t, storer.calls, 1)

	storer.calls[0].cb(c.Hasher().Sum([]byte("not-abc")), nil)
	require.True(t, sw.failed)
	require.ErrorIs(t, sw.err, Integrity.AsError())
	require.Equal(t, uint64(1), c.Stats().DirtyEntries)
	require.Equal(t, uint32(0), c.flushQueueLen, "no flush-queue retry off-root")
	require.Len(t, storer.calls, 1, "no automatic upstream retry off-root")
	require.NoError(t, c.CheckInvariants())

	sw2 := &testStoreWaiter{}
	c.Store(context.Background(), payload, &testOwner{}, sw2)
	require.Len(t, storer.calls, 2, "a fresh store restarts the write-through")
	storer.calls[1].cb(c.Hasher().Sum(payload), nil)
	require.True(t, sw2.responded)
	require.NoError(t, c.CheckInvariants())
}
