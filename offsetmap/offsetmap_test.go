package offsetmap

import (
	"testing"

	"github.com/sherwoodwang/go-image-reconstructor/reconplan"
	"github.com/stretchr/testify/require"
)

func TestMap_SingleImageSegment(t *testing.T) {
	plan := reconplan.Plan{
		{Source: reconplan.Image, SrcStart: 0, SrcEnd: 100},
	}
	l := Build(plan)
	require.Equal(t, uint64(100), l.TotalLen())

	off, err := l.Map(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	off, err = l.Map(99)
	require.NoError(t, err)
	require.Equal(t, uint64(99), off)
}

func TestMap_MultipleImageSegments(t *testing.T) {
	plan := reconplan.Plan{
		{Source: reconplan.Image, SrcStart: 0, SrcEnd: 16},
		{Source: "f", SrcStart: 0, SrcEnd: 16},
		{Source: reconplan.Image, SrcStart: 32, SrcEnd: 48},
	}
	l := Build(plan)
	require.Equal(t, uint64(32), l.TotalLen())

	off, err := l.Map(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	off, err = l.Map(15)
	require.NoError(t, err)
	require.Equal(t, uint64(15), off)

	off, err = l.Map(32)
	require.NoError(t, err)
	require.Equal(t, uint64(16), off)

	off, err = l.Map(47)
	require.NoError(t, err)
	require.Equal(t, uint64(31), off)
}

func TestMap_OffsetInFileGapErrors(t *testing.T) {
	plan := reconplan.Plan{
		{Source: reconplan.Image, SrcStart: 0, SrcEnd: 16},
		{Source: "f", SrcStart: 0, SrcEnd: 16},
		{Source: reconplan.Image, SrcStart: 32, SrcEnd: 48},
	}
	l := Build(plan)

	_, err := l.Map(20)
	require.Error(t, err)
}

func TestMap_OffsetBeforeFirstSegmentErrors(t *testing.T) {
	plan := reconplan.Plan{
		{Source: "f", SrcStart: 0, SrcEnd: 16},
		{Source: reconplan.Image, SrcStart: 16, SrcEnd: 32},
	}
	l := Build(plan)

	_, err := l.Map(0)
	require.Error(t, err)
}

func TestMap_OffsetPastEndErrors(t *testing.T) {
	plan := reconplan.Plan{
		{Source: reconplan.Image, SrcStart: 0, SrcEnd: 16},
	}
	l := Build(plan)

	_, err := l.Map(16)
	require.Error(t, err)
}

func TestMap_NoImageSegments(t *testing.T) {
	plan := reconplan.Plan{
		{Source: "f", SrcStart: 0, SrcEnd: 16},
	}
	l := Build(plan)
	require.Equal(t, uint64(0), l.TotalLen())

	_, err := l.Map(0)
	require.Error(t, err)
}
