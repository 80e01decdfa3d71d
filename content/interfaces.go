package content

import (
	"context"

	"github.com/rmtbon/contentcache/common"
)

// Loader is consulted by the load engine when a requested digest isn't
// resident: the TBON parent link on a non-root node, or the backing
// store on root. cb is invoked exactly once, from the reactor
// goroutine, with either payload bytes or an error.
type Loader interface {
	Load(ctx context.Context, hash common.Digest, cb func(payload []byte, ephemeral bool, err error))
}

// Storer is consulted by the store and flush engines to durably persist
// a dirty entry's payload. cb is invoked exactly once with the digest
// the collaborator stored under (which must equal the local digest; a
// mismatch is an Integrity error) or an error.
type Storer interface {
	Store(ctx context.Context, payload []byte, cb func(hash common.Digest, err error))
}

// MmapRef is the Owner a MmapSource hands back alongside a hit: besides
// anchoring the payload's lifetime (Release), it can re-read the same
// extent so the load engine can revalidate a mmapped entry against the
// live file on every subsequent load. content/mmap.Ref implements this.
type MmapRef interface {
	Owner
	Fetch() (payload []byte, err error)
}

// MmapSource is consulted by the root load engine ahead of the backing
// store on a miss: content/mmap.Table implements it.
type MmapSource interface {
	Lookup(hash common.Digest) (payload []byte, ref MmapRef, ok bool)
}

// Metrics receives accounting updates as they happen; content/metrics
// implements this over prometheus/client_golang. A nil Metrics is valid
// and simply means "don't export."
type Metrics interface {
	SetValid(count uint64)
	SetDirty(count uint64)
	SetSize(bytes uint64)
	SetFlushQueueLen(n uint64)
	IncLoads()
	IncLoadHits()
	IncStores()
	IncPurged()
	IncFlushed()
	IncFlushFailed()
}
