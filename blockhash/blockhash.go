// Package blockhash turns a byte stream into a sequence of fast,
// non-cryptographic per-block hashes used as a candidate filter by the
// image index and extent matcher. It implements component C1.
package blockhash

import (
	"fmt"
	"io"

	"github.com/spaolacci/murmur3"
)

// Hash is a block's MurmurHash3 x86_32 digest, seed 0, interpreted as
// unsigned. Collisions are expected and tolerated by byte verification
// downstream; this is a candidate filter, not a security primitive.
type Hash = uint32

// Sequence is the ordered per-block hash list for a stream. Sequence[i] is
// the hash of block i, whose byte offset is i*BlockSize.
type Sequence []Hash

// Hasher reads a stream once and produces its block Sequence.
type Hasher struct {
	blockSize int
}

// New returns a Hasher that hashes blockSize-byte blocks. blockSize must be
// greater than zero.
func New(blockSize int) (*Hasher, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockhash: block size must be > 0, got %d", blockSize)
	}
	return &Hasher{blockSize: blockSize}, nil
}

// BlockSize returns the configured block size.
func (h *Hasher) BlockSize() int {
	return h.blockSize
}

// HashStream reads r sequentially to EOF and returns one hash per block,
// ceil(size/blockSize) of them in total; the final block may be short. An
// I/O error while reading is fatal and returned to the caller.
func (h *Hasher) HashStream(r io.Reader) (Sequence, error) {
	buf := make([]byte, h.blockSize)
	var out Sequence
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			out = append(out, murmur3.Sum32(buf[:n]))
		}
		if err == io.EOF {
			return out, nil
		}
		if err == io.ErrUnexpectedEOF {
			// Final, short block already hashed above.
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blockhash: read failed: %w", err)
		}
	}
}

// NumBlocks returns ceil(size/blockSize), the number of hashes HashStream
// would produce for a stream of the given size.
func (h *Hasher) NumBlocks(size uint64) uint64 {
	bs := uint64(h.blockSize)
	return (size + bs - 1) / bs
}
