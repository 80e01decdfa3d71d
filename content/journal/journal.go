// Package journal persists a cache's dirty (not-yet-flushed) entries to
// disk so a restart doesn't silently lose stores that were acknowledged
// to a caller but never made it to the backing store. It is purely
// additive: nothing in the request/response protocol depends on it, and
// a missing or corrupt journal file only costs the chance to recover
// those entries, never correctness of a running process.
//
// The on-disk format is a version tag followed by a flat rlp-encoded
// list of records; Read rejects a journal whose version tag it does not
// know.
package journal

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/rlp"
)

const journalVersion = 1

// Record is one dirty blob as persisted to the journal.
type Record struct {
	Hash    []byte
	Payload []byte
}

type journalData struct {
	Version uint64
	Records []Record
}

// Write atomically persists records to path: it encodes to a temporary
// file and renames over path, so a crash mid-write never leaves a
// truncated journal behind.
func Write(path string, records []Record) error {
	buf := new(bytes.Buffer)
	if err := rlp.Encode(buf, journalData{Version: journalVersion, Records: records}); err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("journal: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Read loads records previously written by Write. A missing file
// returns (nil, nil): there's simply nothing to recover, which is the
// expected state on a process's very first run.
func Read(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}
	var data journalData
	if err := rlp.DecodeBytes(b, &data); err != nil {
		return nil, fmt.Errorf("journal: decode %s: %w", path, err)
	}
	if data.Version != journalVersion {
		return nil, fmt.Errorf("journal: %s: unsupported version %d", path, data.Version)
	}
	return data.Records, nil
}
