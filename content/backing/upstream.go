package backing

import (
	"context"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/log"
)

// Parent is the capability an Upstream collaborator needs from the TBON
// parent link: send a load or store toward the root and get a response
// back asynchronously. transport.InProcessClient implements this directly.
type Parent interface {
	Load(ctx context.Context, hash common.Digest, cb func(payload []byte, ephemeral bool, err error))
	Store(ctx context.Context, payload []byte, cb func(hash common.Digest, err error))
}

// Upstream adapts a TBON parent link into the content.Loader/
// content.Storer pair a non-root cache uses. Every request is logged
// before being forwarded; the cache table itself stays log-free.
type Upstream struct {
	parent Parent
	log    log.Logger
}

// NewUpstream wraps parent for use as a non-root cache's collaborator.
// A nil logger falls back to the package root logger.
func NewUpstream(parent Parent, logger log.Logger) *Upstream {
	if logger == nil {
		logger = log.Root()
	}
	return &Upstream{parent: parent, log: logger}
}

// Load implements content.Loader.
func (u *Upstream) Load(ctx context.Context, hash common.Digest, cb func(payload []byte, ephemeral bool, err error)) {
	u.log.Debug("content load upstream", "hash", hash)
	u.parent.Load(ctx, hash, cb)
}

// Store implements content.Storer.
func (u *Upstream) Store(ctx context.Context, payload []byte, cb func(hash common.Digest, err error)) {
	u.log.Debug("content store upstream", "size", len(payload))
	u.parent.Store(ctx, payload, cb)
}
