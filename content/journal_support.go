package content

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// DirtyEntry is a point-in-time copy of one dirty entry's digest and
// payload, used by content/journal to persist unflushed stores across a
// restart.
type DirtyEntry struct {
	Hash    common.Digest
	Payload []byte
}

// DirtyEntries snapshots every currently dirty entry.
func (c *Cache) DirtyEntries() []DirtyEntry {
	out := make([]DirtyEntry, 0, c.acctDirty)
	for _, e := range c.entries {
		if e.dirty() {
			out = append(out, DirtyEntry{Hash: e.hash, Payload: append([]byte(nil), e.payload...)})
		}
	}
	return out
}

// Restore re-inserts a previously journaled dirty entry at startup,
// before the reactor begins serving requests: it is marked dirty and
// queued for flush exactly as if a Store had just completed locally,
// except there is no waiter to notify; the requester that produced the
// journaled entry is long gone.
func (c *Cache) Restore(hash common.Digest, payload []byte) {
	e, created := c.getOrCreate(hash)
	if !created && e.valid() {
		return
	}
	before := snapshotAcct(e)
	e.fillStored(payload, &byteSliceOwner{}, c.now())
	c.applyAcctDelta(before, e)
	if c.IsRoot() {
		c.enqueueFlush(e)
	} else {
		c.startStore(context.Background(), e)
	}
}
