// Package offsetmap translates image-byte offsets of a plan's IMAGE
// segments into offsets into the concatenated embedded-bytes region, via
// binary search over a small precomputed layout. It implements component
// C5.
package offsetmap

import (
	"fmt"
	"sort"

	"github.com/sherwoodwang/go-image-reconstructor/reconplan"
)

// segment is one IMAGE segment's position in both the image and the
// concatenated embedded region.
type segment struct {
	imageStart, imageEnd uint64
	cumulativeOffset     uint64
}

// Layout is the precomputed image-offset -> concatenated-offset mapping
// for a Plan's IMAGE segments, built once and queried many times while
// rendering reconstruction directives.
type Layout struct {
	segments []segment
	total    uint64
}

// Build precomputes the layout from a plan's IMAGE segments, in the order
// they appear in the plan.
func Build(plan reconplan.Plan) *Layout {
	var segs []segment
	var cumulative uint64
	for _, e := range plan {
		if !e.IsImage() {
			continue
		}
		segs = append(segs, segment{
			imageStart:       e.SrcStart,
			imageEnd:         e.SrcEnd,
			cumulativeOffset: cumulative,
		})
		cumulative += e.Len()
	}
	return &Layout{segments: segs, total: cumulative}
}

// TotalLen returns the total size of the concatenated embedded region.
func (l *Layout) TotalLen() uint64 {
	return l.total
}

// Map translates an image-byte offset that falls within some IMAGE segment
// into its offset in the concatenated embedded region. It errors if the
// offset isn't covered by any IMAGE segment (i.e. it belongs to a
// file-sourced region, or is out of range).
func (l *Layout) Map(imageOffset uint64) (uint64, error) {
	segs := l.segments
	i := sort.Search(len(segs), func(i int) bool { return segs[i].imageStart > imageOffset })
	if i == 0 {
		return 0, fmt.Errorf("offsetmap: offset %d precedes any image segment", imageOffset)
	}
	s := segs[i-1]
	if imageOffset < s.imageStart || imageOffset >= s.imageEnd {
		return 0, fmt.Errorf("offsetmap: offset %d is not covered by any image segment", imageOffset)
	}
	return s.cumulativeOffset + (imageOffset - s.imageStart), nil
}
