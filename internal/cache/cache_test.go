package cache

import (
	"context"
	"testing"

	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/device/devicetest"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitUnformattedDiscYieldsEmptyRoot(t *testing.T) {
	fake := devicetest.New()
	fake.SetUTOCSector2(bytesOf(0xAA, 2352))
	c := New(fake)

	require.NoError(t, c.Init(context.Background()))
	assert.True(t, c.Root().Empty())
}

func TestApplyRefreshComputesNextFileID(t *testing.T) {
	c := New(devicetest.New())
	tracks := []device.TrackInfo{
		{Index: 0, Title: "h_fs_00"},
		{Index: 1, Title: "h_fs_02"},
	}
	c.ApplyRefresh(tracks, device.TOC{TrackMap: make([]int, 3), Fragments: make([]device.Fragment, 1)})
	assert.Equal(t, 1, c.NextFileID())
}

func TestApplyRefreshSectorLength(t *testing.T) {
	c := New(devicetest.New())
	tracks := []device.TrackInfo{{Index: 0, Title: "Hello"}}
	toc := device.TOC{
		TrackMap: []int{0, 1},
		Fragments: []device.Fragment{
			{},
			{LogicalStart: 0, LogicalEnd: 10, Flags: device.FlagSPMode},
		},
	}
	c.ApplyRefresh(tracks, toc)
	assert.Equal(t, uint32(10*2332+2048), c.SectorLength(0))
}

func TestResolveIDToIndex(t *testing.T) {
	c := New(devicetest.New())
	c.ApplyRefresh([]device.TrackInfo{{Index: 3, Title: "h_fs_05"}}, device.TOC{TrackMap: make([]int, 5), Fragments: make([]device.Fragment, 1)})
	assert.Equal(t, 3, c.ResolveIDToIndex(5))
	assert.Equal(t, -1, c.ResolveIDToIndex(6))
}

func TestAudioBufferCachesPerIndex(t *testing.T) {
	c := New(devicetest.New())
	builds := 0
	newBuf := func() *streambuf.Buffer {
		builds++
		return streambuf.New(nil)
	}

	first := c.AudioBuffer(0, newBuf)
	second := c.AudioBuffer(0, newBuf)
	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)

	third := c.AudioBuffer(1, newBuf)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, builds)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
