// Package mmap implements the read-only mapped-file region store: a
// node maps a flat file into memory at a fixed blob size, hashes each
// fixed-size slice (the last may be short), and serves content loads
// directly out of the mapping instead of copying every blob into the
// cache table.
package mmap

import (
	"fmt"

	xmmap "golang.org/x/exp/mmap"

	"github.com/rmtbon/contentcache/common"
)

// Region is one mapped file, sliced into blobSize-sized chunks and
// refcounted across every holder of a reference into it: the table's
// index entries plus one per cache entry whose payload currently points
// into it. The underlying mapping is released only once every reference
// is dropped.
type Region struct {
	path     string
	reader   *xmmap.ReaderAt
	blobSize int64
	fileLen  int64
	digests  []common.Digest
	refs     int
}

var errEmptyFile = fmt.Errorf("cannot map an empty file")

// Open mmaps path read-only and slices it into blobSize-sized blobs,
// hashing each with hasher. The caller receives one reference; Incref
// once per additional holder that comes to keep a slice of it alive.
func Open(path string, blobSize int64, hasher common.Hasher) (*Region, error) {
	if blobSize <= 0 {
		return nil, fmt.Errorf("mmap: %s: blob size must be positive", path)
	}
	r, err := xmmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %s: %w", path, err)
	}
	fileLen := int64(r.Len())
	if fileLen == 0 {
		r.Close()
		return nil, fmt.Errorf("mmap: %s: %w", path, errEmptyFile)
	}
	blobCount := (fileLen + blobSize - 1) / blobSize

	region := &Region{path: path, reader: r, blobSize: blobSize, fileLen: fileLen, refs: 1}
	digests := make([]common.Digest, blobCount)
	for i := int64(0); i < blobCount; i++ {
		b, err := region.sliceAt(i)
		if err != nil {
			r.Close()
			return nil, err
		}
		digests[i] = hasher.Sum(b)
	}
	region.digests = digests
	return region, nil
}

// Path returns the mapped file's path.
func (r *Region) Path() string { return r.path }

// Len returns the mapped file's size in bytes.
func (r *Region) Len() int64 { return r.fileLen }

// BlobSize returns the fixed slice size the region was mapped with.
func (r *Region) BlobSize() int64 { return r.blobSize }

// Digests returns the per-slice digest list computed at Open time, in
// slice-index order. The slice must not be mutated by the caller.
func (r *Region) Digests() []common.Digest { return r.digests }

// Incref adds a reference to r and returns r, for the common "hand this
// same region out again" call pattern.
func (r *Region) Incref() *Region {
	r.refs++
	return r
}

// Release implements content.Owner: it is called exactly once per
// reference handed out, and closes the mapping once the count reaches
// zero.
func (r *Region) Release() {
	r.refs--
	if r.refs <= 0 {
		r.reader.Close()
	}
}

// extent returns the byte range of slice index i.
func (r *Region) extent(index int64) (offset, length int64) {
	offset = index * r.blobSize
	length = r.blobSize
	if offset+length > r.fileLen {
		length = r.fileLen - offset
	}
	return offset, length
}

func (r *Region) sliceAt(index int64) ([]byte, error) {
	offset, length := r.extent(index)
	return r.slice(offset, length)
}

// slice reads [offset, offset+length) out of the mapped file. Because
// golang.org/x/exp/mmap.ReaderAt exposes only ReadAt rather than a raw
// slice into the mapping, this is a single copy into a freshly allocated
// buffer sized exactly to length — still served out of the kernel page
// cache via the mapping rather than a second independent read, but not
// literally zero-copy.
func (r *Region) slice(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > r.fileLen {
		return nil, fmt.Errorf("mmap: slice [%d,%d) out of range for %s (len %d)", offset, offset+length, r.path, r.fileLen)
	}
	buf := make([]byte, length)
	if _, err := r.reader.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("mmap: read %s: %w", r.path, err)
	}
	return buf, nil
}

// Ref is a single reference into a region's slice index, handed to the
// cache entry whose payload currently borrows those bytes. It implements
// content.MmapRef: Release drops the region reference, Fetch re-reads
// the current bytes at the same extent so the cache can revalidate a
// mmapped entry against the live file.
type Ref struct {
	region *Region
	index  int64
}

// Fetch re-reads the slice's current bytes. A subsequent hash mismatch
// against the digest the entry is keyed under means the backing file
// changed since it was mapped.
func (r *Ref) Fetch() ([]byte, error) {
	return r.region.sliceAt(r.index)
}

// Release implements content.Owner.
func (r *Ref) Release() { r.region.Release() }
