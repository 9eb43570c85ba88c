package transfer

import (
	"context"
	"testing"

	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/device/devicetest"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/metrics"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFileWriteTransferZeroPads(t *testing.T) {
	fake := devicetest.New()
	coord := New(fake, metrics.NewNop())

	err := coord.StartFileWriteTransfer(context.Background(), 0, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)

	tracks := fake.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "h_fs_00", tracks[0].Title)

	buf := streambuf.New(nil)
	require.NoError(t, coord.StartReadTransfer(context.Background(), buf, 0, device.RecoveryOptions{}))
	got, err := buf.GetContents(context.Background(), 0, 4096)
	require.NoError(t, err)
	require.Len(t, got, 2112)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got[:4])
	assert.Equal(t, make([]byte, 2112-4), got[4:])
}

func TestWriteTOCStampsHiddenTracks(t *testing.T) {
	fake := devicetest.New()
	fake.SeedTrack("h_fs_00", device.EncodingLP2, make([]byte, 2112))
	coord := New(fake, metrics.NewNop())

	root := fstree.NewDirectory("")
	root.Add("a.bin", &fstree.Node{File: &fstree.File{TrackID: 0, Name: "a.bin", ByteLength: 4}})

	err := coord.WriteTOC(context.Background(), root)
	require.NoError(t, err)

	flags, ok := fake.FragmentFlags(0)
	require.True(t, ok)
	assert.NotZero(t, flags&device.FlagSPMode)
	assert.NotZero(t, flags&device.FlagStereo)
	assert.Zero(t, flags&device.FlagWritable)
}

func TestWriteTOCThenGetTFSRoundTrips(t *testing.T) {
	fake := devicetest.New()
	coord := New(fake, metrics.NewNop())

	root := fstree.NewDirectory("")
	root.Add("song.bin", &fstree.Node{File: &fstree.File{TrackID: 1, Name: "song.bin", ByteLength: 10}})

	require.NoError(t, coord.WriteTOC(context.Background(), root))

	got, err := coord.GetTFS(context.Background())
	require.NoError(t, err)
	child := got.GetChild("song.bin")
	require.NotNil(t, child)
	require.NotNil(t, child.File)
	assert.Equal(t, uint32(10), child.File.ByteLength)
}

func TestIdempotentFlush(t *testing.T) {
	fake := devicetest.New()
	coord := New(fake, metrics.NewNop())
	root := fstree.NewDirectory("")
	root.Add("a.bin", &fstree.Node{File: &fstree.File{TrackID: 0, Name: "a.bin", ByteLength: 4}})

	require.NoError(t, coord.WriteTOC(context.Background(), root))
	first, err := fake.ReadUTOCSector(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, coord.WriteTOC(context.Background(), root))
	second, err := fake.ReadUTOCSector(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeleteTrackRefreshesCache(t *testing.T) {
	fake := devicetest.New()
	fake.SeedTrack("h_fs_00", device.EncodingLP2, make([]byte, 2112))
	c := cache.New(fake)
	coord := New(fake, metrics.NewNop())

	require.NoError(t, coord.DeleteTrack(context.Background(), 0, c))
	assert.Equal(t, 0, c.NextFileID())
	assert.Empty(t, c.Tracks())
}

func TestStartReadTransferFiltersHeaderForHiddenFiles(t *testing.T) {
	fake := devicetest.New()
	payload := []byte{1, 2, 3, 4, 5, 6}
	fake.SeedTrack("h_fs_00", device.EncodingLP2, payload)
	coord := New(fake, metrics.NewNop())

	buf := streambuf.New(nil)
	err := coord.StartReadTransfer(context.Background(), buf, 0, device.RecoveryOptions{AudioTrack: false})
	require.NoError(t, err)

	got, err := buf.GetContents(context.Background(), 0, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
