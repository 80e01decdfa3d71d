package content

import (
	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/common/mclock"
)

// Owner is the payload's lifetime anchor: whoever supplied the bytes
// backing an entry's payload slice (a request/response message, or a
// mapped mmap region). An owner is retained by the caller before it is
// handed to fill() and released exactly once, when the entry is
// destroyed. The payload slice is only valid while the owner is held.
type Owner interface {
	Release()
}

// Waiter is anything parked on an entry's load or store waiter stack. It
// is consulted for disconnection (a disconnected waiter is dropped
// silently instead of responded to) but is otherwise an opaque link; the
// table never inspects more than this.
type Waiter interface {
	Disconnected() bool
}

// LoadWaiter is parked on an invalid entry awaiting payload bytes from
// an in-flight upstream or backing load.
type LoadWaiter interface {
	Waiter
	RespondLoad(payload []byte, ephemeral bool)
	FailLoad(err error)
}

// StoreWaiter is parked on a dirty entry awaiting the digest once the
// entry has been durably stored upstream.
type StoreWaiter interface {
	Waiter
	RespondStore(hash common.Digest)
	FailStore(err error)
}

// FlushWaiter is parked awaiting the dirty count to reach zero.
type FlushWaiter interface {
	Waiter
	RespondFlush()
	FailFlush(err error)
}

type waiterNode struct {
	w    Waiter
	next *waiterNode
}

// waiterStack is a LIFO stack of waiters. Parked requests for one hash
// are indistinguishable from each other, so the answer order within a
// batch is unspecified; LIFO keeps push and drain O(1) with a single
// pointer.
type waiterStack struct {
	top *waiterNode
}

func (s *waiterStack) push(w Waiter) {
	s.top = &waiterNode{w: w, next: s.top}
}

func (s *waiterStack) empty() bool { return s.top == nil }

// drain pops every waiter off the stack, in LIFO order, invoking fn on
// each live one. Disconnected waiters are skipped.
func (s *waiterStack) drain(fn func(Waiter)) {
	for n := s.top; n != nil; n = n.next {
		if !n.w.Disconnected() {
			fn(n.w)
		}
	}
	s.top = nil
}

func (s *waiterStack) count() int {
	n := 0
	for c := s.top; c != nil; c = c.next {
		n++
	}
	return n
}

// stateBits is the per-entry flag byte.
type stateBits uint8

const (
	stateValid stateBits = 1 << iota
	stateDirty
	stateEphemeral
	stateLoadPending
	stateStorePending
	stateMmapped
)

func (s stateBits) has(b stateBits) bool { return s&b != 0 }

// entry is one cache-table slot: at most one payload owner, a state
// bitmask, and the two waiter stacks a load or store may park requests
// on while the entry transitions. Entries additionally carry the
// intrusive links the table's LRU list and flush queue thread through
// them directly, so unlink needs only the entry pointer.
type entry struct {
	hash common.Digest

	payload []byte
	owner   Owner

	state stateBits

	loadWaiters  waiterStack
	storeWaiters waiterStack

	lastUsed mclock.AbsTime

	// lru{Prev,Next} thread the entry through the cache's LRU list. Both
	// nil and not linked means the entry is off-list (invalid, dirty, or
	// load/store pending, so not eligible for purge).
	lruPrev, lruNext *entry
	linked           bool

	// flushNext threads the entry through the flush engine's pending
	// queue; flushQueued distinguishes "queued, flushNext nil because
	// it's the tail" from "not queued".
	flushNext   *entry
	flushQueued bool
}

func newEntry(h common.Digest) *entry {
	return &entry{hash: h}
}

// fillLoaded installs payload bytes into an invalid (or being-created) entry,
// retained via owner, and marks it valid. Any parked load waiters are
// released with the new payload.
func (e *entry) fillLoaded(payload []byte, owner Owner, ephemeral bool, now mclock.AbsTime) {
	e.setPayload(payload, owner)
	e.state |= stateValid
	if ephemeral {
		e.state |= stateEphemeral
	}
	e.state &^= stateLoadPending
	e.lastUsed = now
	e.loadWaiters.drain(func(w Waiter) {
		w.(LoadWaiter).RespondLoad(e.payload, e.state.has(stateEphemeral))
	})
}

// fillStored installs payload bytes supplied directly by a store
// request. The entry becomes valid and dirty; any load waiters already
// parked on it are released with the new payload. Store waiters are
// parked separately and released once the entry actually reaches the
// backing store (clearDirty, called from onStoreComplete in store.go),
// not here.
func (e *entry) fillStored(payload []byte, owner Owner, now mclock.AbsTime) {
	e.setPayload(payload, owner)
	e.state |= stateValid | stateDirty
	e.state &^= stateLoadPending
	e.lastUsed = now
	e.loadWaiters.drain(func(w Waiter) {
		w.(LoadWaiter).RespondLoad(e.payload, false)
	})
}

func (e *entry) setPayload(payload []byte, owner Owner) {
	if e.owner != nil {
		e.owner.Release()
	}
	e.payload = payload
	e.owner = owner
}

// clearDirty marks the entry clean once its payload has been durably
// stored and releases any parked store waiters with the entry's digest.
func (e *entry) clearDirty(hash common.Digest) {
	e.state &^= stateDirty | stateStorePending
	e.storeWaiters.drain(func(w Waiter) {
		w.(StoreWaiter).RespondStore(hash)
	})
}

// failStore releases parked store waiters with an error, leaving the
// entry dirty (the bytes are still only held locally; a later flush
// attempt may still succeed).
func (e *entry) failStore(err error) {
	e.state &^= stateStorePending
	e.storeWaiters.drain(func(w Waiter) {
		w.(StoreWaiter).FailStore(err)
	})
}

// failLoad releases parked load waiters with an error, leaving the
// entry invalid so a subsequent load can retry.
func (e *entry) failLoad(err error) {
	e.state &^= stateLoadPending
	e.loadWaiters.drain(func(w Waiter) {
		w.(LoadWaiter).FailLoad(err)
	})
}

func (e *entry) destroy() {
	if e.owner != nil {
		e.owner.Release()
		e.owner = nil
	}
	e.payload = nil
}

func (e *entry) valid() bool     { return e.state.has(stateValid) }
func (e *entry) dirty() bool     { return e.state.has(stateDirty) }
func (e *entry) ephemeral() bool { return e.state.has(stateEphemeral) }
