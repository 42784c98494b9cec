// Package imageindex holds an image's block-hash sequence in memory and
// answers candidate-position queries for the extent matcher. It implements
// component C2.
package imageindex

import (
	"sort"

	"github.com/sherwoodwang/go-image-reconstructor/blockhash"
)

// Index answers "find the next block position at or after `from` where the
// next len(pattern) hashes equal pattern" queries against a fixed image hash
// sequence. It holds no reference to the underlying file or bytes — only
// the hash sequence — and does not persist across runs.
type Index struct {
	hashes    blockhash.Sequence
	positions map[blockhash.Hash][]uint64 // hash -> sorted block positions sharing it
}

// New builds an Index over an image's block hash sequence. Construction is
// O(n): every position is bucketed by its hash once.
func New(hashes blockhash.Sequence) *Index {
	positions := make(map[blockhash.Hash][]uint64, len(hashes))
	for i, h := range hashes {
		positions[h] = append(positions[h], uint64(i))
	}
	return &Index{hashes: hashes, positions: positions}
}

// Len returns the number of blocks in the indexed image.
func (idx *Index) Len() uint64 {
	return uint64(len(idx.hashes))
}

// FindFirstMatch returns the smallest block position i >= from such that
// idx.hashes[i:i+len(pattern)] == pattern, or (0, false) if none exists.
// len(pattern) must be >= 1.
func (idx *Index) FindFirstMatch(pattern blockhash.Sequence, from uint64) (uint64, bool) {
	if len(pattern) == 0 {
		return 0, false
	}
	candidates := idx.positions[pattern[0]]
	// candidates is sorted ascending by construction order.
	start := sort.Search(len(candidates), func(i int) bool { return candidates[i] >= from })
	for _, pos := range candidates[start:] {
		if idx.matchesAt(pattern, pos) {
			return pos, true
		}
	}
	return 0, false
}

func (idx *Index) matchesAt(pattern blockhash.Sequence, pos uint64) bool {
	if pos+uint64(len(pattern)) > uint64(len(idx.hashes)) {
		return false
	}
	for i, h := range pattern {
		if idx.hashes[pos+uint64(i)] != h {
			return false
		}
	}
	return true
}
