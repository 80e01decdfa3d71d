package transport

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// InProcessClient adapts a parent-rank Server into the backing.Parent
// capability a non-root cache's Upstream collaborator needs to climb
// the TBON, without an actual RPC hop. It is the degenerate in-process
// transport for a single-process multi-rank deployment, and for tests
// exercising the load/store climb end to end.
//
// The parent Server's blocking methods are driven from a fresh
// goroutine, and the completion callback is bounced back through the
// child rank's own reactor: collaborator completions must run on the
// reactor goroutine of the cache that issued them, never on the
// goroutine that happened to carry the response.
type InProcessClient struct {
	parent *Server
	home   *Reactor
}

// NewInProcessClient wraps parent for use as a child rank's upstream.
// home is the child rank's own reactor, which completion callbacks are
// dispatched through.
func NewInProcessClient(parent *Server, home *Reactor) *InProcessClient {
	return &InProcessClient{parent: parent, home: home}
}

// Load forwards to the parent Server without blocking the child's
// reactor goroutine.
func (c *InProcessClient) Load(ctx context.Context, hash common.Digest, cb func(payload []byte, ephemeral bool, err error)) {
	go func() {
		resp, err := c.parent.Load(ctx, hash)
		c.home.Go(func() { cb(resp.Payload, resp.Ephemeral, err) })
	}()
}

// Store forwards to the parent Server without blocking the child's
// reactor goroutine. requestID dedup is left disabled (empty) here: the
// in-process transport never drops a response, so there is nothing to
// retry against.
func (c *InProcessClient) Store(ctx context.Context, payload []byte, cb func(hash common.Digest, err error)) {
	go func() {
		resp, err := c.parent.Store(ctx, "", payload)
		c.home.Go(func() { cb(resp.Hash, err) })
	}()
}
