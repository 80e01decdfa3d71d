package transport

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content"
)

// dedupCacheSize bounds the request-id idempotency cache.
const dedupCacheSize = 4096

// LoadResponse is the payload a `load` request answers with.
type LoadResponse struct {
	Payload   []byte
	Ephemeral bool
}

// StoreResponse is the payload a `store` request answers with.
type StoreResponse struct {
	Hash common.Digest
}

// StatsResponse is the `stats-get` response.
type StatsResponse struct {
	Count           uint64
	Valid           uint64
	Dirty           uint64
	Size            uint64
	FlushBatchCount uint32
	Mmap            []string
}

type mmapPaths interface {
	MappedPaths() []string
}

// Server dispatches the external cache requests to a content.Cache
// from the reactor goroutine, and deduplicates redelivered store
// requests by an opaque caller-supplied correlation ID so a requester
// retry after a dropped response never re-runs a store twice.
type Server struct {
	cache   *content.Cache
	reactor *Reactor
	mmap    mmapPaths

	dedup *lru.Cache[string, StoreResponse]
}

// NewServer wires cache behind reactor. mmapSrc is optional (nil on a
// non-root node, or a root with no mapped regions) and is consulted only
// to populate stats-get's mmap path listing.
func NewServer(cache *content.Cache, reactor *Reactor, mmapSrc mmapPaths) *Server {
	dedup, _ := lru.New[string, StoreResponse](dedupCacheSize)
	return &Server{cache: cache, reactor: reactor, mmap: mmapSrc, dedup: dedup}
}

// Load serves the `load` request: raw digest in, payload plus
// ephemeral flag out.
func (s *Server) Load(ctx context.Context, hash common.Digest) (LoadResponse, error) {
	w := newLoadWaiter(ctx)
	s.reactor.Go(func() { s.cache.Load(ctx, hash, w) })
	select {
	case r := <-w.ch:
		if r.err != nil {
			return LoadResponse{}, r.err
		}
		return LoadResponse{Payload: r.payload, Ephemeral: r.ephemeral}, nil
	case <-ctx.Done():
		return LoadResponse{}, ctx.Err()
	}
}

// Store serves the `store` request: raw bytes in, digest out.
// requestID is the caller-supplied correlation ID used for dedup; an
// empty requestID disables dedup for that call.
func (s *Server) Store(ctx context.Context, requestID string, payload []byte) (StoreResponse, error) {
	if requestID != "" {
		if cached, ok := s.dedup.Get(requestID); ok {
			return cached, nil
		}
	}
	w := newStoreWaiter(ctx)
	s.reactor.Go(func() { s.cache.Store(ctx, payload, bytesOwner{}, w) })
	select {
	case r := <-w.ch:
		if r.err != nil {
			return StoreResponse{}, r.err
		}
		resp := StoreResponse{Hash: r.hash}
		if requestID != "" {
			s.dedup.Add(requestID, resp)
		}
		return resp, nil
	case <-ctx.Done():
		return StoreResponse{}, ctx.Err()
	}
}

// Flush serves the `flush` request: blocks until no dirty entries
// remain or a non-retriable error is latched.
func (s *Server) Flush(ctx context.Context) error {
	w := newFlushWaiter(ctx)
	s.reactor.Go(func() { s.cache.Flush(ctx, w) })
	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DropCache serves the `dropcache` request.
func (s *Server) DropCache(ctx context.Context) (dropped int, err error) {
	done := make(chan int, 1)
	s.reactor.Go(func() { done <- s.cache.DropCache() })
	select {
	case n := <-done:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stats serves the `stats-get` request.
func (s *Server) Stats(ctx context.Context) (StatsResponse, error) {
	done := make(chan StatsResponse, 1)
	s.reactor.Go(func() {
		st := s.cache.Stats()
		resp := StatsResponse{
			Count:           st.TotalEntries,
			Valid:           st.ValidEntries,
			Dirty:           st.DirtyEntries,
			Size:            st.SizeBytes,
			FlushBatchCount: st.FlushInFlight,
		}
		if s.mmap != nil {
			resp.Mmap = s.mmap.MappedPaths()
		}
		done <- resp
	})
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return StatsResponse{}, ctx.Err()
	}
}

// RegisterBacking serves the `register-backing` request.
func (s *Server) RegisterBacking(ctx context.Context, name string, loader content.Loader, storer content.Storer) error {
	done := make(chan error, 1)
	s.reactor.Go(func() { done <- s.cache.RegisterBacking(name, loader, storer) })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnregisterBacking serves the `unregister-backing` request: no
// payload, root-only.
func (s *Server) UnregisterBacking(ctx context.Context) error {
	done := make(chan error, 1)
	s.reactor.Go(func() { done <- s.cache.UnregisterBacking() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Heartbeat drives the purge and flush-resume engines once. It is
// called by the heartbeat ticker in cmd/cached, or directly by tests.
func (s *Server) Heartbeat(ctx context.Context) {
	s.reactor.Go(func() { s.cache.Heartbeat(ctx) })
}
