package vfs

import (
	"context"
	"testing"

	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/device/devicetest"
	"github.com/netmdfs/netmdfs/internal/metrics"
	"github.com/netmdfs/netmdfs/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestFS(t *testing.T, fake *devicetest.Fake) (*FS, *cache.Cache) {
	t.Helper()
	c := cache.New(fake)
	require.NoError(t, c.Init(context.Background()))
	coord := transfer.New(fake, metrics.NewNop())
	require.NoError(t, c.RefreshCache(context.Background(), coord))
	return New(c, coord, metrics.NewNop()), c
}

// S1 — format empty disc.
func TestFormatEmptyDisc(t *testing.T) {
	fake := devicetest.New()
	fake.SetUTOCSector2(bytesOfLen(0x11, 2352))
	fs, _ := newTestFS(t, fake)

	names, err := fs.Readdir(context.Background(), "/")
	require.NoError(t, err)
	assert.Contains(t, names, "$audio")
	assert.Contains(t, names, "$system")
}

// S2 — create, write, read, flush.
func TestCreateWriteReleaseFlushesTrack(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)
	ctx := context.Background()

	fd, err := fs.Create(ctx, "/a.bin")
	require.NoError(t, err)

	n, err := fs.Write(ctx, fd, 0, 4, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, fs.Release(ctx, fd))

	tracks := fake.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "h_fs_00", tracks[0].Title)

	stat, err := fs.Getattr(ctx, "/a.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stat.Size)
}

// S4 — unlink flows.
func TestUnlinkErasesBackingTrack(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)
	ctx := context.Background()

	fd, err := fs.Create(ctx, "/a.bin")
	require.NoError(t, err)
	_, err = fs.Write(ctx, fd, 0, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, fd))

	require.NoError(t, fs.Unlink(ctx, "/a.bin"))

	names, err := fs.Readdir(ctx, "/")
	require.NoError(t, err)
	assert.NotContains(t, names, "a.bin")
	assert.Empty(t, fake.Tracks())
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)
	ctx := context.Background()

	require.NoError(t, fs.Mkdir(ctx, "/d"))
	fd, err := fs.Create(ctx, "/d/child.bin")
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, fd))

	err = fs.Unlink(ctx, "/d")
	require.Error(t, err)
}

// S5 — audio listing.
func TestAudioListing(t *testing.T) {
	fake := devicetest.New()
	fake.SeedTrack("Hello/World", device.EncodingSP, make([]byte, 10))
	fake.SeedTrack("h_fs_00", device.EncodingLP2, make([]byte, 10))
	fake.SeedTrack("", device.EncodingLP, make([]byte, 10))
	fs, _ := newTestFS(t, fake)

	names, err := fs.Readdir(context.Background(), "/$audio")
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Hello_World.aea", "3. No Title.wav"}, names)
}

func TestOpenRejectsUnsupportedFlags(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)

	_, err := fs.Open(context.Background(), "/$system/info", unix.O_RDWR)
	require.Error(t, err)
}

func TestCreateOnAudioRejected(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)

	_, err := fs.Create(context.Background(), "/$audio/new.wav")
	require.Error(t, err)
}

func TestSystemForceFlushWrite(t *testing.T) {
	fake := devicetest.New()
	fs, _ := newTestFS(t, fake)
	ctx := context.Background()

	fd, err := fs.Open(ctx, "/$system/force_immediate_flush", unix.O_WRONLY)
	require.NoError(t, err)
	_, err = fs.Write(ctx, fd, 0, 1, []byte{1})
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, fd))
}

func bytesOfLen(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
