package content

import "context"

// Heartbeat drives the purge engine; the owning reactor calls it once
// per Config.Heartbeat tick. It also re-pumps the flush queue so a
// Storer that briefly had no free batch slots gets another chance
// without waiting for the next store or flush request.
func (c *Cache) Heartbeat(ctx context.Context) {
	c.purge()
	c.pumpFlushQueue(ctx)
}

// purge evicts least-recently-used entries until acct_size is back at
// or under PurgeTargetSize, or until no more entries are eligible. An
// entry is purge-eligible only if it is neither dirty nor
// load/store-pending (pending entries are kept off the LRU list
// entirely, so they're never visited here) and idle for at least
// PurgeOldEntry; ephemeral entries get no separate exception.
func (c *Cache) purge() {
	if c.acctSize <= c.cfg.PurgeTargetSize {
		return
	}
	now := c.now()
	e := c.lruTail
	for e != nil && c.acctSize > c.cfg.PurgeTargetSize {
		prev := e.lruPrev
		if e.dirty() {
			e = prev
			continue
		}
		eligible := now.Sub(e.lastUsed) >= c.cfg.PurgeOldEntry
		if eligible {
			if c.metrics != nil {
				c.metrics.IncPurged()
			}
			c.remove(e)
		}
		e = prev
	}
}
