package content

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// Store inserts payload, owned by owner, under its content digest. The
// entry is cached and marked dirty, then pushed toward durability along
// a rank-dependent path:
//
//   - Root (write-back): w is answered immediately with the digest and
//     the entry joins the flush queue; durability is left to the flush
//     engine's batched drain to catch up on its own schedule.
//   - Non-root (write-through): w is parked and the store to the
//     upstream parent starts immediately, with no batch limit — the
//     flush queue and its FlushBatchLimit window are a root-only
//     mechanism. w is answered only once the upstream store actually
//     succeeds, so a non-root cache never claims durability it hasn't
//     obtained.
//
// A store of payload already dirty for the same digest reuses the
// existing entry: at root it is answered immediately, and off-root it is
// parked on the entry's store waiter stack instead of re-issuing a
// redundant upstream store while one is in flight.
func (c *Cache) Store(ctx context.Context, payload []byte, owner Owner, w StoreWaiter) {
	if uint64(len(payload)) > c.cfg.BlobSizeLimit {
		owner.Release()
		w.FailStore(newErr(PayloadTooLarge, "payload exceeds blob-size-limit"))
		return
	}

	hash := c.hasher.Sum(payload)
	if c.metrics != nil {
		c.metrics.IncStores()
	}

	e, created := c.getOrCreate(hash)

	if !created && e.valid() && e.ephemeral() {
		// The entry's bytes are only borrowed from a mmap region, not
		// yet a first-class stored payload; a store under the same
		// digest supersedes it entirely rather than being coalesced
		// with it.
		c.remove(e)
		e, created = c.getOrCreate(hash)
	}

	if !created && e.valid() {
		owner.Release()
		c.touch(e)
		if !e.dirty() {
			// Already durable under this digest: nothing to do.
			w.RespondStore(hash)
			return
		}
		// Same content already cached and on its way to durability. At
		// root, the caller still gets its immediate write-back
		// response; non-root parks on the write-through, starting a
		// fresh upstream store unless one is already in flight.
		if c.IsRoot() {
			w.RespondStore(hash)
			return
		}
		e.storeWaiters.push(w)
		c.startStore(ctx, e)
		return
	}

	before := snapshotAcct(e)
	e.fillStored(payload, owner, c.now())
	c.applyAcctDelta(before, e)

	if c.IsRoot() {
		w.RespondStore(hash)
		c.enqueueFlush(e)
	} else {
		e.storeWaiters.push(w)
		c.startStore(ctx, e)
	}
}

// startStore pushes a dirty entry to the configured Storer: the root's
// flush-queue drain and non-root's direct write-through both land here,
// so a failed attempt and a later retry go through the identical
// bookkeeping. A no-op when a store is already in flight for e.
func (c *Cache) startStore(ctx context.Context, e *entry) {
	if e.state.has(stateStorePending) {
		return
	}
	if c.storer == nil {
		// Only reachable from non-root's direct path: pumpFlushQueue
		// refuses to dequeue without a Storer. The entry stays dirty;
		// a later store of the same bytes retries.
		e.storeWaiters.drain(func(w Waiter) {
			w.(StoreWaiter).FailStore(newErr(NoBackingService, "no upstream or backing store configured"))
		})
		return
	}
	e.state |= stateStorePending
	c.unlink(e)
	c.flushInFlight++

	h := e.hash
	payload := e.payload
	c.storer.Store(ctx, payload, func(stored common.Digest, err error) {
		c.onStoreComplete(h, stored, err)
	})
}

// onStoreComplete is the Storer callback. A failure leaves the entry
// dirty instead of dropping it, since the bytes are still only held
// locally; at root it is re-queued for a retry, off-root it waits for a
// fresh store.
func (c *Cache) onStoreComplete(hash common.Digest, stored common.Digest, err error) {
	e := c.lookup(hash)
	if e == nil {
		c.flushInFlight--
		c.pumpFlushQueue(context.Background())
		return
	}

	before := snapshotAcct(e)
	retry := false
	switch {
	case err != nil:
		e.failStore(err)
		c.flushErrno = err
		if c.metrics != nil {
			c.metrics.IncFlushFailed()
		}
		retry = true
	case !hash.Equal(stored):
		integrityErr := newErr(Integrity, "collaborator stored under a different digest")
		e.failStore(integrityErr)
		c.flushErrno = integrityErr
		if c.metrics != nil {
			c.metrics.IncFlushFailed()
		}
		retry = true
	default:
		e.clearDirty(hash)
		c.flushErrno = nil
		if c.metrics != nil {
			c.metrics.IncFlushed()
		}
	}
	c.applyAcctDelta(before, e)
	c.touch(e)
	c.flushInFlight--

	if retry {
		c.failFlushWaiters(c.flushErrno)
		// Only the root's flush engine retries on its own; off-root the
		// entry stays dirty until a fresh store restarts the
		// write-through.
		if c.IsRoot() {
			c.enqueueFlush(e)
		}
	} else {
		c.pumpFlushQueue(context.Background())
	}
}
