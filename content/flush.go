package content

import "context"

// enqueueFlush appends a dirty entry to the flush queue's tail if it
// isn't already queued, then tries to start it. The queue is the root's
// write-back drain; non-root write-throughs bypass it entirely and call
// startStore directly.
func (c *Cache) enqueueFlush(e *entry) {
	if e.flushQueued {
		return
	}
	e.flushQueued = true
	e.flushNext = nil
	if c.flushTail != nil {
		c.flushTail.flushNext = e
	} else {
		c.flushHead = e
	}
	c.flushTail = e
	c.flushQueueLen++
	c.reportMetrics()
	c.pumpFlushQueue(context.Background())
}

// unqueueFlush removes e from the flush queue wherever it sits. It is
// cheap in the common case (e not queued) and a linear scan otherwise;
// entries are only ever removed from the table while dirty-but-queued
// in pathological paths, since both DropCache and the purge engine
// already refuse to touch dirty entries.
func (c *Cache) unqueueFlush(e *entry) {
	if !e.flushQueued {
		return
	}
	e.flushQueued = false
	if c.flushHead == e {
		c.flushHead = e.flushNext
		if c.flushHead == nil {
			c.flushTail = nil
		}
		e.flushNext = nil
		c.flushQueueLen--
		c.reportMetrics()
		return
	}
	for cur := c.flushHead; cur != nil; cur = cur.flushNext {
		if cur.flushNext == e {
			cur.flushNext = e.flushNext
			if c.flushTail == e {
				c.flushTail = cur
			}
			e.flushNext = nil
			c.flushQueueLen--
			c.reportMetrics()
			return
		}
	}
}

func (c *Cache) popFlush() *entry {
	e := c.flushHead
	if e == nil {
		return nil
	}
	c.flushHead = e.flushNext
	if c.flushHead == nil {
		c.flushTail = nil
	}
	e.flushNext = nil
	e.flushQueued = false
	c.flushQueueLen--
	c.reportMetrics()
	return e
}

// pumpFlushQueue dispatches queued entries to the Storer up to
// FlushBatchLimit concurrent in-flight stores. The batch window bounds
// only this drain, at the root; upstream write-throughs off-root are
// never throttled by it. With no Storer configured, queued entries stay
// queued rather than being dequeued into a doomed attempt: there is
// nothing to drain them into, so the flush queue becomes the durable
// record of what's still owed once one is registered.
func (c *Cache) pumpFlushQueue(ctx context.Context) {
	if c.storer == nil {
		return
	}
	for c.flushInFlight < c.cfg.FlushBatchLimit {
		e := c.popFlush()
		if e == nil {
			break
		}
		c.startStore(ctx, e)
	}
}

// Flush answers w once every currently-dirty entry has been durably
// stored. An immediately-clean cache answers
// synchronously. A root with dirty entries and no backing store
// configured can never drain, so it fails fast with NotImplemented
// rather than hanging w forever. Otherwise the queue is pumped; if
// nothing is left in flight afterward and a store attempt has already
// latched a sticky error, w is failed with that error immediately
// instead of being queued to wait for a retry that isn't happening.
func (c *Cache) Flush(ctx context.Context, w FlushWaiter) {
	if c.acctDirty == 0 {
		w.RespondFlush()
		return
	}
	if c.storer == nil {
		w.FailFlush(newErr(NotImplemented, "dirty entries present but no backing store configured"))
		return
	}
	c.pumpFlushQueue(ctx)
	if c.flushInFlight == 0 && c.flushErrno != nil {
		w.FailFlush(wrapErr(IOError, c.flushErrno))
		return
	}
	c.flushWaiters = append(c.flushWaiters, w)
}

// checkFlushWaiters answers every parked Flush waiter once acct_dirty
// has returned to zero.
func (c *Cache) checkFlushWaiters() {
	if c.acctDirty != 0 || len(c.flushWaiters) == 0 {
		return
	}
	waiters := c.flushWaiters
	c.flushWaiters = nil
	for _, w := range waiters {
		if w.Disconnected() {
			continue
		}
		w.RespondFlush()
	}
}

// failFlushWaiters fails every currently-queued flush request with err.
// A nil err is a no-op guard for callers that haven't latched one yet.
func (c *Cache) failFlushWaiters(err error) {
	if err == nil || len(c.flushWaiters) == 0 {
		return
	}
	waiters := c.flushWaiters
	c.flushWaiters = nil
	for _, w := range waiters {
		if w.Disconnected() {
			continue
		}
		w.FailFlush(wrapErr(IOError, err))
	}
}
