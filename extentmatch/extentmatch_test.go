package extentmatch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sherwoodwang/go-image-reconstructor/blockhash"
	"github.com/sherwoodwang/go-image-reconstructor/imageindex"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func hashBytes(t *testing.T, blockSize int, data []byte) blockhash.Sequence {
	t.Helper()
	h, err := blockhash.New(blockSize)
	require.NoError(t, err)
	seq, err := h.HashStream(bytes.NewReader(data))
	require.NoError(t, err)
	return seq
}

func TestMatchFile_SingleExactMatch(t *testing.T) {
	dir := t.TempDir()
	image := append(append(
		repeat('A', 16),
		repeat('B', 16)...),
		repeat('C', 16)...)
	src := repeat('A', 16)

	imageFile := writeTempFile(t, dir, "image.bin", image)
	srcFile := writeTempFile(t, dir, "src", src)

	cfg := Config{BlockSize: 16, MinExtentSize: 16}
	idx := imageindex.New(hashBytes(t, 16, image))
	m, err := New(cfg, idx)
	require.NoError(t, err)

	srcHashes := hashBytes(t, 16, src)
	matches, err := m.MatchFile("src", srcHashes, srcFile, imageFile, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, RawMatch{FilePath: "src", FileStart: 0, FileEnd: 16, ImageStart: 0, ImageEnd: 16}, matches[0])
}

func TestMatchFile_NoMatchWhenFileTooShort(t *testing.T) {
	dir := t.TempDir()
	image := repeat('A', 64)
	src := repeat('A', 8)

	imageFile := writeTempFile(t, dir, "image.bin", image)
	srcFile := writeTempFile(t, dir, "src", src)

	cfg := Config{BlockSize: 16, MinExtentSize: 16}
	idx := imageindex.New(hashBytes(t, 16, image))
	m, err := New(cfg, idx)
	require.NoError(t, err)

	srcHashes := hashBytes(t, 16, src)
	matches, err := m.MatchFile("src", srcHashes, srcFile, imageFile, nil)
	require.NoError(t, err)
	require.Len(t, matches, 0)
}

func TestMatchFile_HashCollisionTolerance(t *testing.T) {
	dir := t.TempDir()
	// Construct an image block and a file block that collide under the
	// real hash function would be hard to force; instead exercise the
	// verify-and-extend miss path directly: byte content differs even if
	// we pretend the index says it's a candidate (simulated by making the
	// pattern search find the only image position, which then fails
	// byte verification because content differs).
	image := repeat('X', 32)
	src := repeat('Y', 32)

	imageFile := writeTempFile(t, dir, "image.bin", image)
	srcFile := writeTempFile(t, dir, "src", src)

	cfg := Config{BlockSize: 16, MinExtentSize: 16}
	// Build an index whose hash sequence is borrowed from the image but
	// force a candidate at position 0 regardless of src's real hash by
	// indexing on src's hash value directly.
	srcHashes := hashBytes(t, 16, src)
	imageHashesForIndex := append(blockhash.Sequence{}, srcHashes[0], srcHashes[1])
	idx := imageindex.New(imageHashesForIndex)
	m, err := New(cfg, idx)
	require.NoError(t, err)

	matches, err := m.MatchFile("src", srcHashes, srcFile, imageFile, nil)
	require.NoError(t, err)
	require.Len(t, matches, 0)
}

func TestMatchFile_PartialTailRoundUp(t *testing.T) {
	dir := t.TempDir()
	// Image: 16 bytes of A, then a final partial block of 8 bytes of A.
	image := append(repeat('A', 16), repeat('A', 8)...)
	src := append(repeat('A', 16), repeat('A', 8)...)

	imageFile := writeTempFile(t, dir, "image.bin", image)
	srcFile := writeTempFile(t, dir, "src", src)

	cfg := Config{BlockSize: 16, MinExtentSize: 16}
	idx := imageindex.New(hashBytes(t, 16, image))
	m, err := New(cfg, idx)
	require.NoError(t, err)

	srcHashes := hashBytes(t, 16, src)
	matches, err := m.MatchFile("src", srcHashes, srcFile, imageFile, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, uint64(0), matches[0].FileStart)
	require.Equal(t, uint64(24), matches[0].FileEnd)
	require.Equal(t, uint64(24), matches[0].ImageEnd)
}

func TestMinExtentBlocks_RoundsUpToAtLeastOne(t *testing.T) {
	cfg := Config{BlockSize: 4096, MinExtentSize: 100}
	require.Equal(t, uint64(1), cfg.MinExtentBlocks())
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
