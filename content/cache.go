// Package content implements the hierarchical content-addressed blob
// cache: the hash-to-entry table and its load, store, flush, purge, and
// backing-store registration engines. It assumes a single-goroutine,
// cooperative-reactor caller: none of its exported methods are safe to
// call concurrently. All state transitions happen on the caller's one
// goroutine, so no locks are taken anywhere in the package.
package content

import (
	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/common/mclock"
	"github.com/rmtbon/contentcache/log"
	"github.com/rmtbon/contentcache/params"
)

// backingState is the root node's backing-store registration state: a
// root cache starts unbound and may latch onto exactly one named backing
// service for its lifetime, or until that service unregisters.
type backingState uint8

const (
	backingNone backingState = iota
	backingBound
)

// Cache is the top-level cache table for one rank in the TBON. Rank 0
// (root) may additionally own a backing store registration and an mmap
// region table, wired in by the owning reactor as separate
// collaborators rather than constructed by Cache itself.
type Cache struct {
	cfg    params.Config
	hasher common.Hasher
	clock  mclock.Clock
	log    log.Logger

	entries map[string]*entry

	lruHead, lruTail *entry
	lruCount         int

	acctValid uint64
	acctDirty uint64
	acctSize  uint64

	loader     Loader
	storer     Storer
	mmapSource MmapSource

	backing     backingState
	backingName string

	flushHead, flushTail *entry
	flushQueueLen        uint32
	flushInFlight        uint32
	flushWaiters         []FlushWaiter

	// flushErrno latches the most recent store-completion failure so a
	// new flush request arriving while nothing is in flight to retry
	// with can fail fast instead of queuing forever. A successful store
	// completion clears it.
	flushErrno error

	metrics Metrics
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithLoader installs the load engine's upstream/backing collaborator.
func WithLoader(l Loader) Option { return func(c *Cache) { c.loader = l } }

// WithStorer installs the store/flush engine's upstream/backing
// collaborator.
func WithStorer(s Storer) Option { return func(c *Cache) { c.storer = s } }

// WithClock overrides the default system clock, e.g. with
// mclock.Simulated in tests.
func WithClock(clk mclock.Clock) Option { return func(c *Cache) { c.clock = clk } }

// WithLogger overrides the default root logger.
func WithLogger(l log.Logger) Option { return func(c *Cache) { c.log = l } }

// WithMetrics installs a Metrics sink.
func WithMetrics(m Metrics) Option { return func(c *Cache) { c.metrics = m } }

// WithMmapSource installs the root-only mmap region lookup consulted
// ahead of the backing store on a load miss.
func WithMmapSource(s MmapSource) Option { return func(c *Cache) { c.mmapSource = s } }

// New constructs a Cache for cfg, which is assumed to already carry
// defaults (params.Config.WithDefaults) and to have been validated.
func New(cfg params.Config, opts ...Option) (*Cache, error) {
	hasher, err := common.LookupHasher(cfg.Hash)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:     cfg,
		hasher:  hasher,
		clock:   mclock.System{},
		log:     log.Root(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Rank reports the TBON rank this cache was configured for.
func (c *Cache) Rank() uint32 { return c.cfg.Rank }

// IsRoot reports whether this cache is the TBON root.
func (c *Cache) IsRoot() bool { return c.cfg.IsRoot() }

// Hasher returns the cache's fixed digest algorithm.
func (c *Cache) Hasher() common.Hasher { return c.hasher }

func (c *Cache) now() mclock.AbsTime { return c.clock.Now() }

// Clock exposes the configured clock source so a caller (e.g.
// cmd/cached's heartbeat loop) can drive ticks through the same time
// base the cache itself uses for last_used/purge comparisons.
func (c *Cache) Clock() mclock.Clock { return c.clock }

// --- table primitives -------------------------------------------------

// lookup returns the entry for hash, or nil.
func (c *Cache) lookup(hash common.Digest) *entry {
	return c.entries[hash.Key()]
}

// getOrCreate returns the existing entry for hash, or creates and
// inserts a new invalid one.
func (c *Cache) getOrCreate(hash common.Digest) (e *entry, created bool) {
	if e = c.entries[hash.Key()]; e != nil {
		return e, false
	}
	e = newEntry(hash)
	c.entries[hash.Key()] = e
	return e, true
}

// remove deletes an entry from the table entirely: unlinks it from the
// LRU list and flush queue, releases its payload owner, and updates
// accounting. Used by dropcache and by the purge engine.
func (c *Cache) remove(e *entry) {
	before := snapshotAcct(e)
	c.unlink(e)
	c.unqueueFlush(e)
	delete(c.entries, e.hash.Key())
	e.destroy()
	if before.valid {
		c.acctValid--
	}
	if before.dirty {
		c.acctDirty--
	}
	c.acctSize -= before.size
	c.reportMetrics()
}

// entryAcct is a snapshot of the accounting-relevant fields of an entry,
// taken before a mutation so the delta against the post-mutation state
// can be applied to the table's running valid/dirty/size totals.
type entryAcct struct {
	valid bool
	dirty bool
	size  uint64
}

func snapshotAcct(e *entry) entryAcct {
	a := entryAcct{valid: e.valid(), dirty: e.dirty()}
	if a.valid {
		a.size = uint64(len(e.payload))
	}
	return a
}

// applyAcctDelta reconciles the table's running totals against e's
// current (post-mutation) state, given its pre-mutation snapshot.
func (c *Cache) applyAcctDelta(before entryAcct, e *entry) {
	after := snapshotAcct(e)
	if before.valid != after.valid {
		if after.valid {
			c.acctValid++
		} else {
			c.acctValid--
		}
	}
	if before.dirty != after.dirty {
		if after.dirty {
			c.acctDirty++
		} else {
			c.acctDirty--
		}
	}
	c.acctSize = c.acctSize - before.size + after.size
	c.reportMetrics()
	c.checkFlushWaiters()
}

func (c *Cache) reportMetrics() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetValid(c.acctValid)
	c.metrics.SetDirty(c.acctDirty)
	c.metrics.SetSize(c.acctSize)
	c.metrics.SetFlushQueueLen(uint64(c.flushQueueLen))
}

// --- LRU list -----------------------------------------------------------
//
// The list is intrusive and doubly linked directly through entry's
// lruPrev/lruNext fields: no separate container, so unlink is O(1)
// given only the entry pointer. lruHead is most-recently-used; lruTail
// is the next purge candidate.

func (c *Cache) linkMRU(e *entry) {
	if e.linked {
		c.unlink(e)
	}
	e.lruPrev = nil
	e.lruNext = c.lruHead
	if c.lruHead != nil {
		c.lruHead.lruPrev = e
	}
	c.lruHead = e
	if c.lruTail == nil {
		c.lruTail = e
	}
	e.linked = true
	c.lruCount++
}

func (c *Cache) unlink(e *entry) {
	if !e.linked {
		return
	}
	if e.lruPrev != nil {
		e.lruPrev.lruNext = e.lruNext
	} else {
		c.lruHead = e.lruNext
	}
	if e.lruNext != nil {
		e.lruNext.lruPrev = e.lruPrev
	} else {
		c.lruTail = e.lruPrev
	}
	e.lruPrev, e.lruNext = nil, nil
	e.linked = false
	c.lruCount--
}

// touch moves e to the MRU end and stamps lastUsed, reflecting a fresh
// access. Only settled, clean entries belong on the LRU list: a dirty
// or load/store-pending entry is always either in flight or sitting in
// the flush queue, and in either case isn't a purge candidate.
func (c *Cache) touch(e *entry) {
	e.lastUsed = c.now()
	if !e.valid() || e.dirty() || e.state.has(stateLoadPending) || e.state.has(stateStorePending) {
		c.unlink(e)
		return
	}
	c.linkMRU(e)
}

// Stats is a point-in-time accounting snapshot.
type Stats struct {
	// TotalEntries is the number of table entries, valid or invalid,
	// including ones still awaiting an in-flight load.
	TotalEntries  uint64
	ValidEntries  uint64
	DirtyEntries  uint64
	SizeBytes     uint64
	FlushQueueLen uint32
	FlushInFlight uint32
}

// Stats reports the current accounting counters.
func (c *Cache) Stats() Stats {
	return Stats{
		TotalEntries:  uint64(len(c.entries)),
		ValidEntries:  c.acctValid,
		DirtyEntries:  c.acctDirty,
		SizeBytes:     c.acctSize,
		FlushQueueLen: c.flushQueueLen,
		FlushInFlight: c.flushInFlight,
	}
}

// DropCache discards every entry that is neither dirty nor pending,
// returning the number of entries actually dropped. It is a forced
// purge ignoring size/age thresholds, but it still refuses to discard
// unflushed data.
func (c *Cache) DropCache() int {
	dropped := 0
	e := c.lruTail
	for e != nil {
		prev := e.lruPrev
		if !e.dirty() && !e.state.has(stateLoadPending) && !e.state.has(stateStorePending) {
			c.remove(e)
			dropped++
		}
		e = prev
	}
	return dropped
}
