package content

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// testLoadWaiter, testStoreWaiter and testFlushWaiter are synchronous
// in-test doubles for the three waiter interfaces: every response lands
// directly in a field the test asserts against, since nothing under
// test here crosses a goroutine boundary — content.Cache's methods are
// always called directly, matching the single-reactor-goroutine
// contract the real transport package enforces via channels.
type testLoadWaiter struct {
	disconnected bool
	responded    bool
	payload      []byte
	ephemeral    bool
	failed       bool
	err          error
}

func (w *testLoadWaiter) Disconnected() bool { return w.disconnected }
func (w *testLoadWaiter) RespondLoad(payload []byte, ephemeral bool) {
	w.responded = true
	w.payload = append([]byte(nil), payload...)
	w.ephemeral = ephemeral
}
func (w *testLoadWaiter) FailLoad(err error) { w.failed = true; w.err = err }

type testStoreWaiter struct {
	disconnected bool
	responded    bool
	hash         common.Digest
	failed       bool
	err          error
}

func (w *testStoreWaiter) Disconnected() bool           { return w.disconnected }
func (w *testStoreWaiter) RespondStore(h common.Digest) { w.responded = true; w.hash = h }
func (w *testStoreWaiter) FailStore(err error)          { w.failed = true; w.err = err }

type testFlushWaiter struct {
	disconnected bool
	responded    bool
	failed       bool
	err          error
}

func (w *testFlushWaiter) Disconnected() bool  { return w.disconnected }
func (w *testFlushWaiter) RespondFlush()       { w.responded = true }
func (w *testFlushWaiter) FailFlush(err error) { w.failed = true; w.err = err }

// testOwner counts Release calls so tests can assert payload ownership
// is released exactly once per transition away from the entry that
// held it.
type testOwner struct{ released int }

func (o *testOwner) Release() { o.released++ }

// testLoader and testStorer let a test control upstream/backing
// completion explicitly — capturing the callback instead of resolving
// it synchronously — so coalescing and in-flight-count assertions can
// be made before completing a request.
type loadCall struct {
	hash common.Digest
	cb   func(payload []byte, ephemeral bool, err error)
}

type testLoader struct{ calls []loadCall }

func (l *testLoader) Load(ctx context.Context, hash common.Digest, cb func([]byte, bool, error)) {
	l.calls = append(l.calls, loadCall{hash: hash, cb: cb})
}

type storeCall struct {
	payload []byte
	cb      func(hash common.Digest, err error)
}

type testStorer struct{ calls []storeCall }

func (s *testStorer) Store(ctx context.Context, payload []byte, cb func(common.Digest, error)) {
	s.calls = append(s.calls, storeCall{payload: append([]byte(nil), payload...), cb: cb})
}
