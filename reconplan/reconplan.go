// Package reconplan deduplicates and merges overlapping RawMatches into an
// ordered, gapless reconstruction plan covering the whole image exactly
// once. It implements component C4.
package reconplan

import (
	"sort"

	"github.com/sherwoodwang/go-image-reconstructor/extentmatch"
)

// Image is the sentinel source naming a PlanEntry sourced from the image's
// own embedded-bytes region rather than a named input file.
const Image = ""

// Entry is one covering segment of the reconstruction plan: copy
// Source.bytes[SrcStart:SrcEnd] next. Source is either reconplan.Image or
// a file path.
type Entry struct {
	Source   string
	SrcStart uint64
	SrcEnd   uint64
}

// Len returns the number of bytes this entry contributes.
func (e Entry) Len() uint64 {
	return e.SrcEnd - e.SrcStart
}

// IsImage reports whether this entry sources from the image itself.
func (e Entry) IsImage() bool {
	return e.Source == Image
}

// Plan is the ordered sequence of entries that, concatenated, reproduces
// the original image byte-for-byte.
type Plan []Entry

// Build sorts, trims, and stitches matches into a Plan covering
// [0, imageSize). matches is consumed read-only; Build does not mutate it.
func Build(matches []extentmatch.RawMatch, imageSize uint64) Plan {
	if imageSize == 0 {
		return Plan{{Source: Image, SrcStart: 0, SrcEnd: 0}}
	}
	if len(matches) == 0 {
		return Plan{{Source: Image, SrcStart: 0, SrcEnd: imageSize}}
	}

	sorted := make([]extentmatch.RawMatch, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ImageStart != sorted[j].ImageStart {
			return sorted[i].ImageStart < sorted[j].ImageStart
		}
		return sorted[i].ImageEnd > sorted[j].ImageEnd
	})

	type kept struct {
		filePath               string
		fileStart, fileEnd     uint64
		imageStart, imageEnd   uint64
	}
	var trimmed []kept
	var lastEnd uint64
	for _, m := range sorted {
		if m.ImageEnd <= lastEnd {
			continue // fully covered by a previously kept match
		}
		fileStart, imageStart := m.FileStart, m.ImageStart
		if imageStart < lastEnd {
			advance := lastEnd - imageStart
			imageStart += advance
			fileStart += advance
		}
		trimmed = append(trimmed, kept{
			filePath:   m.FilePath,
			fileStart:  fileStart,
			fileEnd:    m.FileEnd,
			imageStart: imageStart,
			imageEnd:   m.ImageEnd,
		})
		lastEnd = m.ImageEnd
	}

	var plan Plan
	var cursor uint64
	for _, k := range trimmed {
		if cursor < k.imageStart {
			plan = append(plan, Entry{Source: Image, SrcStart: cursor, SrcEnd: k.imageStart})
		}
		plan = append(plan, Entry{Source: k.filePath, SrcStart: k.fileStart, SrcEnd: k.fileEnd})
		cursor = k.imageEnd
	}
	if cursor < imageSize {
		plan = append(plan, Entry{Source: Image, SrcStart: cursor, SrcEnd: imageSize})
	}
	if len(plan) == 0 {
		plan = Plan{{Source: Image, SrcStart: 0, SrcEnd: imageSize}}
	}
	return plan
}

// TotalLen returns the sum of all entry lengths, which must equal the
// image size for a well-formed plan.
func (p Plan) TotalLen() uint64 {
	var total uint64
	for _, e := range p {
		total += e.Len()
	}
	return total
}

// ImageSegments returns the subsequence of entries sourced from the image,
// in plan order.
func (p Plan) ImageSegments() []Entry {
	var segs []Entry
	for _, e := range p {
		if e.IsImage() {
			segs = append(segs, e)
		}
	}
	return segs
}
