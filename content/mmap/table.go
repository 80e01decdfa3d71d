package mmap

import (
	"fmt"
	"sync"

	"github.com/rmtbon/contentcache/common"
)

// Table indexes every mapped region's blobs by digest for O(1) lookup,
// and tracks mapped paths so a duplicate Map is rejected and Unmap can
// find what to release.
type Table struct {
	mu      sync.Mutex
	hasher  common.Hasher
	regions map[string]*Region // path -> region

	// index maps a digest's Key() to the region and slice index that
	// produced it. Duplicate digests within or across regions keep the
	// first mapping.
	index map[string]indexed
}

type indexed struct {
	region *Region
	slot   int64
}

// NewTable constructs an empty region table that validates slices
// against hasher, which must match the owning cache's configured
// algorithm.
func NewTable(hasher common.Hasher) *Table {
	return &Table{
		hasher:  hasher,
		regions: make(map[string]*Region),
		index:   make(map[string]indexed),
	}
}

var (
	errAlreadyMapped = fmt.Errorf("path already mapped")
	errNotMapped     = fmt.Errorf("path not mapped")
)

// Map opens and indexes path at the given blobSize: the file is split
// into ceil(file_size/blob_size) slices, each slice is hashed and
// entered into the digest index, and the resulting digest list is
// returned in slice order. Mapping an already-mapped path fails with
// errAlreadyMapped, and an empty file fails with an error wrapping
// errEmptyFile; both are plain errors that carry no content.Kind.
func (t *Table) Map(path string, blobSize int64) ([]common.Digest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.regions[path]; exists {
		return nil, errAlreadyMapped
	}

	r, err := Open(path, blobSize, t.hasher)
	if err != nil {
		return nil, err
	}

	for i, d := range r.digests {
		key := d.Key()
		if _, dup := t.index[key]; dup {
			continue
		}
		t.index[key] = indexed{region: r, slot: int64(i)}
		r.Incref()
	}
	// The Open() reference isn't attached to any index entry on its own;
	// drop it once every index entry holds its own incref. The table's
	// regions map entry below keeps the region from vanishing entirely.
	r.Release()

	t.regions[path] = r
	return append([]common.Digest(nil), r.digests...), nil
}

// Unmap releases path's region-table registration: every index entry
// the region still owns is dropped along with its reference. Cache
// entries whose payloads still borrow from the region keep it open via
// their own incref'd Ref until each entry is destroyed and calls
// Ref.Release.
func (t *Table) Unmap(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.regions[path]
	if !ok {
		return errNotMapped
	}
	for _, d := range r.digests {
		if idx, found := t.index[d.Key()]; found && idx.region == r {
			delete(t.index, d.Key())
			r.Release()
		}
	}
	delete(t.regions, path)
	return nil
}

// Lookup returns the current payload bytes for hash if a mapped region
// indexes it, along with a freshly incref'd Ref the caller must Release
// exactly once. The returned Ref's Fetch re-reads the same extent for
// later revalidation.
func (t *Table) Lookup(hash common.Digest) (payload []byte, ref *Ref, ok bool) {
	t.mu.Lock()
	idx, found := t.index[hash.Key()]
	if !found {
		t.mu.Unlock()
		return nil, nil, false
	}
	idx.region.Incref()
	t.mu.Unlock()

	b, err := idx.region.sliceAt(idx.slot)
	if err != nil {
		idx.region.Release()
		return nil, nil, false
	}
	return b, &Ref{region: idx.region, index: idx.slot}, true
}

// MappedPaths lists every currently mapped path.
func (t *Table) MappedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.regions))
	for p := range t.regions {
		paths = append(paths, p)
	}
	return paths
}
