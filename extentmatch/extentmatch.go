// Package extentmatch finds, for a given input file, the longest
// confirmed-identical spans between that file and an image, using a
// hash-probe-then-byte-verify strategy. It implements component C3.
package extentmatch

import (
	"fmt"
	"io"
	"os"

	"github.com/sherwoodwang/go-image-reconstructor/blockhash"
	"github.com/sherwoodwang/go-image-reconstructor/imageindex"
)

// verifyChunkSize is the byte-compare granularity used while extending a
// hash-confirmed candidate. 64 KiB per spec.
const verifyChunkSize = 64 * 1024

// RawMatch is a validated, byte-verified extent shared between a file and
// the image. FileEnd-FileStart == ImageEnd-ImageStart >= the matcher's
// configured minimum extent size.
type RawMatch struct {
	FilePath   string
	FileStart  uint64
	FileEnd    uint64
	ImageStart uint64
	ImageEnd   uint64
}

// Config holds the matcher's tunables.
type Config struct {
	BlockSize      int
	MinExtentSize  uint64
}

// MinExtentBlocks is max(1, MinExtentSize/BlockSize), enforced even when the
// ratio would otherwise round down to zero.
func (c Config) MinExtentBlocks() uint64 {
	blocks := c.MinExtentSize / uint64(c.BlockSize)
	if blocks < 1 {
		blocks = 1
	}
	return blocks
}

// Matcher scans input files against a fixed image index, appending
// confirmed matches to a caller-owned pool.
type Matcher struct {
	cfg   Config
	image *imageindex.Index
}

// New returns a Matcher configured against the given image index.
func New(cfg Config, image *imageindex.Index) (*Matcher, error) {
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("extentmatch: block size must be > 0")
	}
	if cfg.MinExtentSize == 0 || cfg.MinExtentSize%uint64(cfg.BlockSize) != 0 {
		return nil, fmt.Errorf("extentmatch: min extent size must be a positive multiple of block size")
	}
	return &Matcher{cfg: cfg, image: image}, nil
}

// MatchFile scans filePath (whose precomputed block hashes are fileHashes)
// against the image and appends every confirmed RawMatch it finds, in
// file-start order, to out. imageFile and file are independent, already
// opened read-only handles onto the image and filePath respectively; the
// matcher reads both with positioned reads (ReadAt), so neither handle's
// cursor is moved or shared.
func (m *Matcher) MatchFile(filePath string, fileHashes blockhash.Sequence, file, imageFile *os.File, out []RawMatch) ([]RawMatch, error) {
	minBlocks := m.cfg.MinExtentBlocks()
	bs := uint64(m.cfg.BlockSize)

	fileStat, err := file.Stat()
	if err != nil {
		return out, fmt.Errorf("extentmatch: stat file: %w", err)
	}
	imageStat, err := imageFile.Stat()
	if err != nil {
		return out, fmt.Errorf("extentmatch: stat image: %w", err)
	}
	fileSize := uint64(fileStat.Size())
	imageSize := uint64(imageStat.Size())

	var currentBlock uint64
	for currentBlock+minBlocks <= uint64(len(fileHashes)) {
		pattern := fileHashes[currentBlock : currentBlock+minBlocks]

		var (
			searchFrom         uint64
			matchFileEndBlock  uint64
			matchFileEndOff    uint64
			matchImageStartBlk uint64
			matchImageEndOff   uint64
			found              bool
		)
		for {
			i, ok := m.image.FindFirstMatch(pattern, searchFrom)
			if !ok {
				break
			}
			fileEndBlock, fileEndOff, imageEndOff, verifyErr := m.verifyAndExtend(file, imageFile, currentBlock, i, minBlocks, fileSize, imageSize)
			if verifyErr != nil {
				return out, verifyErr
			}
			if fileEndBlock > 0 {
				matchFileEndBlock = fileEndBlock
				matchFileEndOff = fileEndOff
				matchImageStartBlk = i
				matchImageEndOff = imageEndOff
				found = true
				break
			}
			// Hash hit, byte-verify failed (collision, or extent too short):
			// keep searching later image positions for this same pattern.
			searchFrom = i + 1
		}

		if found {
			out = append(out, RawMatch{
				FilePath:   filePath,
				FileStart:  currentBlock * bs,
				FileEnd:    matchFileEndOff,
				ImageStart: matchImageStartBlk * bs,
				ImageEnd:   matchImageEndOff,
			})
			currentBlock = matchFileEndBlock
		} else {
			currentBlock += minBlocks
		}
	}
	return out, nil
}

// verifyAndExtend confirms and extends a hash-probed candidate by comparing
// bytes starting at fileBlock*blockSize in file and imageBlock*blockSize in
// imageFile, extending forward until a mismatch or either stream ends. The
// returned byte offsets are round-up converted to block granularity per
// spec, then clamped to fileSize/imageSize so a trailing partial-block match
// never claims bytes past either stream's actual end, and finally cut to a
// common length so both spans stay equally long. fileEndBlock is the
// (unclamped) block index used by the caller to resume scanning; it returns
// (0, 0, 0) if the confirmed extent is shorter than minBlocks.
func (m *Matcher) verifyAndExtend(file, imageFile *os.File, fileBlock, imageBlock, minBlocks, fileSize, imageSize uint64) (fileEndBlock, fileEndOff, imageEndOff uint64, err error) {
	bs := uint64(m.cfg.BlockSize)
	fileStartOff := fileBlock * bs
	imageStartOff := imageBlock * bs

	fileBuf := make([]byte, verifyChunkSize)
	imageBuf := make([]byte, verifyChunkSize)

	var bytesMatched uint64
	var fileOff, imageOff = fileStartOff, imageStartOff
	for {
		fn, ferr := readAt(file, fileBuf, fileOff)
		in, ierr := readAt(imageFile, imageBuf, imageOff)
		n := fn
		if in < n {
			n = in
		}
		common := commonPrefixLen(fileBuf[:fn], imageBuf[:in])
		if common > n {
			common = n
		}
		bytesMatched += uint64(common)
		if common < n || fn == 0 || in == 0 || ferr != nil || ierr != nil {
			if ferr != nil && ferr != io.EOF {
				return 0, 0, 0, fmt.Errorf("extentmatch: reading file: %w", ferr)
			}
			if ierr != nil && ierr != io.EOF {
				return 0, 0, 0, fmt.Errorf("extentmatch: reading image: %w", ierr)
			}
			break
		}
		fileOff += uint64(fn)
		imageOff += uint64(in)
	}

	fileEndBlock = ceilDiv(fileStartOff+bytesMatched, bs)
	imageEndBlock := ceilDiv(imageStartOff+bytesMatched, bs)
	if fileEndBlock-fileBlock < minBlocks {
		return 0, 0, 0, nil
	}

	fileEndOff = fileEndBlock * bs
	if fileEndOff > fileSize {
		fileEndOff = fileSize
	}
	imageEndOff = imageEndBlock * bs
	if imageEndOff > imageSize {
		imageEndOff = imageSize
	}
	// Keep both spans the same length: the side that extends further is
	// cut back to the shorter side's length.
	if fileLen, imageLen := fileEndOff-fileStartOff, imageEndOff-imageStartOff; fileLen < imageLen {
		imageEndOff = imageStartOff + fileLen
	} else {
		fileEndOff = fileStartOff + imageLen
	}
	return fileEndBlock, fileEndOff, imageEndOff, nil
}

// readAt reads up to len(buf) bytes starting at off, returning however many
// bytes were actually read (possibly fewer than len(buf), including zero)
// alongside the first error encountered, mirroring io.ReaderAt semantics
// without requiring ReadAt's "n<len(p) implies err!=nil" guarantee from
// *os.File specifically (which already provides it).
func readAt(f *os.File, buf []byte, off uint64) (int, error) {
	n, err := f.ReadAt(buf, int64(off))
	return n, err
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func ceilDiv(n, d uint64) uint64 {
	return (n + d - 1) / d
}
