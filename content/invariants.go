package content

import "fmt"

// CheckInvariants walks the entire table and asserts the structural
// invariants a cache at rest between operations must satisfy:
// accounting counters match a recount, list links are consistent, and
// every entry's state bits agree with its list membership. It is O(n)
// in the number of entries and is meant for tests and debug builds, not
// the hot path.
func (c *Cache) CheckInvariants() error {
	var (
		valid, dirty uint64
		size         uint64
	)
	for _, e := range c.entries {
		if e.valid() {
			valid++
			size += uint64(len(e.payload))
		}
		if e.state.has(stateMmapped) && (!e.valid() || !e.ephemeral() || e.dirty()) {
			return fmt.Errorf("content: invariant violated: mmapped entry %s is not valid+ephemeral+clean", e.hash)
		}
		if e.dirty() {
			dirty++
			pending := e.state.has(stateStorePending)
			if c.IsRoot() {
				// At root every dirty entry is in exactly one of
				// store-pending or flush-queued, never both, never
				// neither.
				if pending == e.flushQueued {
					return fmt.Errorf("content: invariant violated: dirty entry %s store-pending=%v flush-queued=%v", e.hash, pending, e.flushQueued)
				}
			} else if e.flushQueued {
				// The flush queue is a root-only mechanism; off-root a
				// dirty entry is either in flight upstream or waiting
				// for a fresh store to restart the write-through.
				return fmt.Errorf("content: invariant violated: dirty entry %s flush-queued off-root", e.hash)
			}
		}
		pending := e.state.has(stateLoadPending) || e.state.has(stateStorePending)
		if e.linked && (pending || e.dirty() || !e.valid()) {
			return fmt.Errorf("content: invariant violated: ineligible entry %s is on the LRU list", e.hash)
		}
		if !e.linked && e.valid() && !pending && !e.dirty() {
			return fmt.Errorf("content: invariant violated: settled clean entry %s is off the LRU list", e.hash)
		}
	}

	if valid != c.acctValid {
		return fmt.Errorf("content: invariant violated: acct_valid=%d, counted %d", c.acctValid, valid)
	}
	if dirty != c.acctDirty {
		return fmt.Errorf("content: invariant violated: acct_dirty=%d, counted %d", c.acctDirty, dirty)
	}
	if size != c.acctSize {
		return fmt.Errorf("content: invariant violated: acct_size=%d, counted %d", c.acctSize, size)
	}

	if err := c.checkLRUList(); err != nil {
		return err
	}
	return c.checkFlushQueue()
}

func (c *Cache) checkLRUList() error {
	n := 0
	var prev *entry
	for e := c.lruHead; e != nil; e = e.lruNext {
		if e.lruPrev != prev {
			return fmt.Errorf("content: invariant violated: LRU list back-link broken at %s", e.hash)
		}
		prev = e
		n++
		if n > len(c.entries) {
			return fmt.Errorf("content: invariant violated: LRU list longer than the table (cycle?)")
		}
	}
	if prev != c.lruTail {
		return fmt.Errorf("content: invariant violated: LRU tail pointer stale")
	}
	if n != c.lruCount {
		return fmt.Errorf("content: invariant violated: lruCount=%d, counted %d", c.lruCount, n)
	}
	return nil
}

func (c *Cache) checkFlushQueue() error {
	n := uint32(0)
	var prevTail *entry
	for e := c.flushHead; e != nil; e = e.flushNext {
		if !e.flushQueued {
			return fmt.Errorf("content: invariant violated: flush queue member %s not marked flushQueued", e.hash)
		}
		if !e.dirty() {
			return fmt.Errorf("content: invariant violated: flush queue member %s is not dirty", e.hash)
		}
		prevTail = e
		n++
		if n > uint32(len(c.entries))+1 {
			return fmt.Errorf("content: invariant violated: flush queue longer than the table (cycle?)")
		}
	}
	if prevTail != c.flushTail {
		return fmt.Errorf("content: invariant violated: flush tail pointer stale")
	}
	if n != c.flushQueueLen {
		return fmt.Errorf("content: invariant violated: flushQueueLen=%d, counted %d", c.flushQueueLen, n)
	}
	return nil
}
