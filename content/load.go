package content

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// Load resolves hash to payload bytes. If the entry is already valid, w
// is answered synchronously, before Load returns; a mmapped entry is
// first revalidated against its live file. If the entry is invalid but
// a load is already in flight for it, w is parked on the waiter stack
// and answered later when that load settles, so at most one
// upstream/backing load is ever outstanding per hash. On a fresh miss
// at root, the mmap region table is consulted before falling back to
// the backing store; only then is a load started via the configured
// Loader.
func (c *Cache) Load(ctx context.Context, hash common.Digest, w LoadWaiter) {
	if len(hash) != c.hasher.Size {
		w.FailLoad(newErr(ProtocolError, "digest width mismatch"))
		return
	}
	e, created := c.getOrCreate(hash)

	if e.valid() {
		if e.state.has(stateMmapped) && !c.revalidateMmap(e) {
			c.remove(e)
			w.FailLoad(newErr(Invalid, "mmapped region contents no longer match the recorded digest"))
			return
		}
		c.touch(e)
		w.RespondLoad(e.payload, e.ephemeral())
		return
	}

	if e.state.has(stateLoadPending) {
		e.loadWaiters.push(w)
		return
	}

	e.loadWaiters.push(w)

	if created && c.IsRoot() && c.mmapSource != nil {
		if payload, ref, ok := c.mmapSource.Lookup(hash); ok {
			before := snapshotAcct(e)
			e.fillLoaded(payload, ref, true, c.now())
			e.state |= stateMmapped
			c.applyAcctDelta(before, e)
			c.touch(e)
			return
		}
	}

	c.startLoad(ctx, e)
}

// revalidateMmap re-reads a mmapped entry's bytes from its region and
// recomputes the digest, refreshing the cached payload on a match. A
// region-sourced digest must still match the bytes at that offset each
// time they are served; the file may have changed underneath the map.
func (c *Cache) revalidateMmap(e *entry) bool {
	ref, ok := e.owner.(MmapRef)
	if !ok {
		return true
	}
	b, err := ref.Fetch()
	if err != nil {
		return false
	}
	if !c.hasher.Sum(b).Equal(e.hash) {
		return false
	}
	e.payload = b
	return true
}

// startLoad marks e load-pending and asks the collaborator for its
// bytes. An entry with no collaborator (root, no backing registered)
// and no mmap hit fails immediately with NotFound.
func (c *Cache) startLoad(ctx context.Context, e *entry) {
	e.state |= stateLoadPending
	c.unlink(e)
	if c.metrics != nil {
		c.metrics.IncLoads()
	}

	if c.loader == nil {
		e.failLoad(newErr(NotFound, "not cached and no upstream configured"))
		c.remove(e)
		return
	}

	h := e.hash
	c.loader.Load(ctx, h, func(payload []byte, ephemeral bool, err error) {
		c.onLoadComplete(h, payload, ephemeral, err)
	})
}

// onLoadComplete is the Loader callback: it re-looks-up the entry and
// fulfils or fails it. Pending entries are unlinked from the LRU and
// never purged, so the entry is normally still present; the nil check
// covers a caller driving completions after shutdown.
func (c *Cache) onLoadComplete(hash common.Digest, payload []byte, ephemeral bool, err error) {
	e := c.lookup(hash)
	if e == nil {
		return
	}
	if e.valid() {
		// A concurrent store already filled this entry while the load
		// was outstanding and has already answered the waiters; only
		// the now-stale pending bit needs clearing.
		e.state &^= stateLoadPending
		return
	}
	if err != nil {
		e.failLoad(err)
		c.remove(e)
		return
	}

	before := snapshotAcct(e)
	if c.metrics != nil {
		c.metrics.IncLoadHits()
	}
	owner := &byteSliceOwner{}
	e.fillLoaded(payload, owner, ephemeral, c.now())
	c.applyAcctDelta(before, e)
	c.touch(e)
}

// byteSliceOwner anchors payload bytes that came from a Loader callback
// and have no other owner to retain: the byte slice itself is
// sufficient, so Release is a no-op. It exists so load-sourced entries
// satisfy the Owner contract symmetrically with message- and
// region-sourced ones.
type byteSliceOwner struct{}

func (*byteSliceOwner) Release() {}
