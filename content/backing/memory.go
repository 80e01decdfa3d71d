// Package backing provides the two concrete collaborators a cache can
// bind to: an in-process Memory store for a standalone root node or
// tests, and an Upstream adapter for wiring a non-root cache to its
// TBON parent link.
package backing

import (
	"context"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content"
)

// Memory is a fixed-capacity, flat byte-oriented backing store backed
// by a fastcache.Cache; the fastcache instance simply is the storage.
// Suitable for a standalone single-rank deployment or tests rather than
// a durable backing service.
type Memory struct {
	hasher common.Hasher
	cache  *fastcache.Cache
}

// NewMemory creates a Memory store sized maxBytes, computing digests
// with hasher (which must match the owning Cache's configured
// algorithm).
func NewMemory(hasher common.Hasher, maxBytes int) *Memory {
	return &Memory{hasher: hasher, cache: fastcache.New(maxBytes)}
}

// Load implements content.Loader.
func (m *Memory) Load(ctx context.Context, hash common.Digest, cb func(payload []byte, ephemeral bool, err error)) {
	if !m.cache.Has(hash) {
		cb(nil, false, &content.Error{Kind: content.NotFound, Message: "not present in backing store"})
		return
	}
	cb(m.cache.GetBig(nil, hash), false, nil)
}

// Store implements content.Storer: it computes the digest itself (as a
// real backing service would) rather than trusting a caller-supplied
// one, so a mismatch between what the cache thinks it stored and what
// the backing computed surfaces as an Integrity error upstream.
func (m *Memory) Store(ctx context.Context, payload []byte, cb func(hash common.Digest, err error)) {
	h := m.hasher.Sum(payload)
	m.cache.SetBig(h, payload)
	cb(h, nil)
}

// Len reports the approximate number of entries resident, for stats
// reporting.
func (m *Memory) Len() uint64 {
	var s fastcache.Stats
	m.cache.UpdateStats(&s)
	return s.EntriesCount
}
