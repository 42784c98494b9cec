package reconplan

import (
	"testing"

	"github.com/sherwoodwang/go-image-reconstructor/extentmatch"
	"github.com/stretchr/testify/require"
)

func TestBuild_EmptyImage(t *testing.T) {
	plan := Build(nil, 0)
	require.Equal(t, Plan{{Source: Image, SrcStart: 0, SrcEnd: 0}}, plan)
}

func TestBuild_NoMatches(t *testing.T) {
	plan := Build(nil, 100)
	require.Equal(t, Plan{{Source: Image, SrcStart: 0, SrcEnd: 100}}, plan)
}

func TestBuild_SingleExactMatch(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "src", FileStart: 0, FileEnd: 16, ImageStart: 16, ImageEnd: 32},
	}
	plan := Build(matches, 48)
	require.Equal(t, Plan{
		{Source: Image, SrcStart: 0, SrcEnd: 16},
		{Source: "src", SrcStart: 0, SrcEnd: 16},
		{Source: Image, SrcStart: 32, SrcEnd: 48},
	}, plan)
}

func TestBuild_OverlapTrim_FullyCovered(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "f", FileStart: 0, FileEnd: 200, ImageStart: 100, ImageEnd: 300},
		{FilePath: "f", FileStart: 0, FileEnd: 150, ImageStart: 150, ImageEnd: 300},
	}
	plan := Build(matches, 1000)
	require.Equal(t, Plan{
		{Source: Image, SrcStart: 0, SrcEnd: 100},
		{Source: "f", SrcStart: 0, SrcEnd: 200},
		{Source: Image, SrcStart: 300, SrcEnd: 1000},
	}, plan)
}

func TestBuild_PartialOverlapTrim(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "f", FileStart: 0, FileEnd: 150, ImageStart: 100, ImageEnd: 250},
		{FilePath: "f", FileStart: 0, FileEnd: 200, ImageStart: 200, ImageEnd: 400},
	}
	plan := Build(matches, 1000)
	require.Equal(t, Plan{
		{Source: Image, SrcStart: 0, SrcEnd: 100},
		{Source: "f", SrcStart: 0, SrcEnd: 150},
		{Source: "f", SrcStart: 50, SrcEnd: 200},
		{Source: Image, SrcStart: 400, SrcEnd: 1000},
	}, plan)
}

func TestBuild_NoConsecutiveImageEntries(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "f", FileStart: 0, FileEnd: 10, ImageStart: 10, ImageEnd: 20},
		{FilePath: "f", FileStart: 0, FileEnd: 10, ImageStart: 50, ImageEnd: 60},
	}
	plan := Build(matches, 100)
	for i := 1; i < len(plan); i++ {
		require.False(t, plan[i-1].IsImage() && plan[i].IsImage(), "consecutive IMAGE entries at %d", i)
	}
}

func TestBuild_TotalLenMatchesImageSize(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "f", FileStart: 0, FileEnd: 150, ImageStart: 100, ImageEnd: 250},
		{FilePath: "f", FileStart: 0, FileEnd: 200, ImageStart: 200, ImageEnd: 400},
	}
	plan := Build(matches, 1000)
	require.Equal(t, uint64(1000), plan.TotalLen())
}

func TestBuild_ImageSegments(t *testing.T) {
	matches := []extentmatch.RawMatch{
		{FilePath: "f", FileStart: 0, FileEnd: 16, ImageStart: 16, ImageEnd: 32},
	}
	plan := Build(matches, 48)
	segs := plan.ImageSegments()
	require.Len(t, segs, 2)
	require.Equal(t, uint64(0), segs[0].SrcStart)
	require.Equal(t, uint64(32), segs[1].SrcStart)
}
