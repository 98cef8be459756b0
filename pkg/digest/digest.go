// Package digest computes file content digests. The full SHA-256 digest
// is the only basis for declaring two files duplicates; the xxhash
// first-block digest exists purely to prune groups before full hashing.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	// BlockSize is the streaming read buffer size.
	BlockSize = 32 * 1024

	// FirstBlockSize is how much of a file the prefilter digest reads.
	FirstBlockSize = 4 * 1024

	// PrefilterThreshold is the smallest file size worth a prefilter
	// pass; anything smaller is read fully by the prefilter anyway.
	PrefilterThreshold = int64(FirstBlockSize)
)

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, BlockSize)
		return &b
	},
}

// SumFile streams the whole file through SHA-256 and returns the digest
// hex-encoded. The file is never loaded into memory at once.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open file")
	}
	defer f.Close()

	h := sha256.New()

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, f, *bufPtr); err != nil {
		return "", errors.Wrap(err, "read file")
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFirstBlock hashes the leading FirstBlockSize bytes with xxhash.
// Matching first blocks prove nothing; differing first blocks prove the
// files differ, which is all the prefilter needs.
func SumFirstBlock(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open file")
	}
	defer f.Close()

	buf := make([]byte, FirstBlockSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, errors.Wrap(err, "read first block")
	}

	return xxhash.Sum64(buf[:n]), nil
}
