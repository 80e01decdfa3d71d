package transport

import (
	"context"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content"
)

// loadResult is what a load waiter delivers back to its caller.
type loadResult struct {
	payload   []byte
	ephemeral bool
	err       error
}

// loadWaiter adapts a single Load caller into content.LoadWaiter: it is
// parked on an entry's waiter stack and resolved exactly once.
type loadWaiter struct {
	ctx context.Context
	ch  chan loadResult
}

func newLoadWaiter(ctx context.Context) *loadWaiter {
	return &loadWaiter{ctx: ctx, ch: make(chan loadResult, 1)}
}

func (w *loadWaiter) Disconnected() bool { return w.ctx.Err() != nil }
func (w *loadWaiter) RespondLoad(payload []byte, ephemeral bool) {
	w.ch <- loadResult{payload: append([]byte(nil), payload...), ephemeral: ephemeral}
}
func (w *loadWaiter) FailLoad(err error) { w.ch <- loadResult{err: err} }

// storeResult is what a store waiter delivers back to its caller.
type storeResult struct {
	hash common.Digest
	err  error
}

// storeWaiter adapts a single Store caller into content.StoreWaiter.
type storeWaiter struct {
	ctx context.Context
	ch  chan storeResult
}

func newStoreWaiter(ctx context.Context) *storeWaiter {
	return &storeWaiter{ctx: ctx, ch: make(chan storeResult, 1)}
}

func (w *storeWaiter) Disconnected() bool           { return w.ctx.Err() != nil }
func (w *storeWaiter) RespondStore(h common.Digest) { w.ch <- storeResult{hash: h} }
func (w *storeWaiter) FailStore(err error)          { w.ch <- storeResult{err: err} }

// flushWaiter adapts a single Flush caller into content.FlushWaiter.
type flushWaiter struct {
	ctx context.Context
	ch  chan error
}

func newFlushWaiter(ctx context.Context) *flushWaiter {
	return &flushWaiter{ctx: ctx, ch: make(chan error, 1)}
}

func (w *flushWaiter) Disconnected() bool  { return w.ctx.Err() != nil }
func (w *flushWaiter) RespondFlush()       { w.ch <- nil }
func (w *flushWaiter) FailFlush(err error) { w.ch <- err }

// bytesOwner anchors payload bytes supplied directly by a caller. There
// is no underlying RPC message framing to borrow from at this layer, so
// Release is a no-op: the byte slice needs no separate teardown.
type bytesOwner struct{}

func (bytesOwner) Release() {}

var _ content.LoadWaiter = (*loadWaiter)(nil)
var _ content.StoreWaiter = (*storeWaiter)(nil)
var _ content.FlushWaiter = (*flushWaiter)(nil)
