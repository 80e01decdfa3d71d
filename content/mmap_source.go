package content

import (
	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content/mmap"
)

// NewMmapSource adapts a content/mmap.Table to the MmapSource interface
// the load engine consults. It exists only to match content/mmap.Table's
// concrete *mmap.Ref return type to the MmapRef interface; the table
// does all the real work.
func NewMmapSource(t *mmap.Table) MmapSource { return mmapTableSource{t} }

type mmapTableSource struct{ t *mmap.Table }

func (s mmapTableSource) Lookup(hash common.Digest) (payload []byte, ref MmapRef, ok bool) {
	p, r, ok := s.t.Lookup(hash)
	if !ok {
		return nil, nil, false
	}
	return p, r, true
}
