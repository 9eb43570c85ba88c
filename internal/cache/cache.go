// Package cache holds the filesystem's mutable view of the disc: the FS
// tree root, a snapshot of the disc's track listing and TOC-derived sector
// lengths, the audio streaming-buffer pool, and the free track-ID allocator
// (spec §4.4).
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/logger"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"github.com/netmdfs/netmdfs/internal/tfscodec"
)

// Sector-length constants for the formula in spec §4.4. 220 is preserved
// literal per the spec's design notes; its origin isn't explained upstream.
const (
	sectorBytesSP  = 2332
	lpPenalty      = 220
	headerBytesLP  = 48
	headerBytesSP  = 2048
	fullTrackLimit = 256
)

// DiscReader is the read-through subset of the transfer coordinator's
// interface Cache needs to rebuild its snapshot. Defined here (rather than
// importing package transfer) so transfer can depend on cache without a
// cycle.
type DiscReader interface {
	GetDiscState(ctx context.Context) ([]device.TrackInfo, error)
	GetTOC(ctx context.Context) (device.TOC, error)
}

// TOCCommitter is the subset of the coordinator Cache needs to flush.
type TOCCommitter interface {
	WriteTOC(ctx context.Context, root *fstree.Directory) error
}

// Cache is the process-wide cache described by spec §4.4. Construct with
// New and call Init once before serving any filesystem operation.
type Cache struct {
	driver device.Driver

	mu                 sync.Mutex
	root               *fstree.Directory
	tracks             []device.TrackInfo
	trackSectorLengths map[int]uint32
	audioFileCache     map[int]*streambuf.Buffer
	nextFileID         int // fullTrackLimit means the disc is full
}

// New returns a Cache backed by driver, with an empty root until Init runs.
func New(driver device.Driver) *Cache {
	return &Cache{
		driver:             driver,
		root:               fstree.NewDirectory(""),
		trackSectorLengths: make(map[int]uint32),
		audioFileCache:     make(map[int]*streambuf.Buffer),
	}
}

// Init loads the FS tree root from UTOC sector 2. A parse failure is
// treated as an unformatted disc: the root becomes an empty directory, not
// an error.
func (c *Cache) Init(ctx context.Context) error {
	sector2, err := c.driver.ReadUTOCSector(ctx, 2)
	if err != nil {
		return fmt.Errorf("cache: read UTOC sector 2: %w", err)
	}

	var payload []byte
	if len(sector2) > tfscodec.Offset {
		payload = sector2[tfscodec.Offset:]
	}

	root, err := tfscodec.Decode(payload)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		logger.Info("disc unformatted, adopting empty root", logger.KeyError, err.Error())
		c.root = fstree.NewDirectory("")
		return nil
	}
	c.root = root
	return nil
}

// RefreshCache re-reads the disc listing and TOC through r and recomputes
// trackSectorLengths and nextFileID.
func (c *Cache) RefreshCache(ctx context.Context, r DiscReader) error {
	tracks, err := r.GetDiscState(ctx)
	if err != nil {
		return fmt.Errorf("cache: get disc state: %w", err)
	}
	toc, err := r.GetTOC(ctx)
	if err != nil {
		return fmt.Errorf("cache: get toc: %w", err)
	}
	c.ApplyRefresh(tracks, toc)
	return nil
}

// ApplyRefresh recomputes derived state from an already-fetched track
// listing and TOC, without touching the device. Split out from
// RefreshCache so the transfer coordinator can call it after a device
// operation it already performed under its own lock, instead of issuing a
// second (reentrant) round of device reads.
func (c *Cache) ApplyRefresh(tracks []device.TrackInfo, toc device.TOC) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = tracks
	lengths := make(map[int]uint32, len(tracks))
	used := make(map[int]bool)
	for _, t := range tracks {
		if id, ok := hiddenTrackID(t.Title); ok {
			used[id] = true
			continue
		}
		lengths[t.Index] = sectorLength(toc, t.Index)
	}
	c.trackSectorLengths = lengths

	id := 0
	for used[id] && id < fullTrackLimit {
		id++
	}
	if id >= fullTrackLimit {
		logger.Error("no free track id available, disc is full")
	}
	c.nextFileID = id
}

func sectorLength(toc device.TOC, index int) uint32 {
	if index+1 >= len(toc.TrackMap) {
		return 0
	}
	head := toc.TrackMap[index+1]
	if head == 0 || head >= len(toc.Fragments) {
		return 0
	}

	var sectors uint32
	isLP := false
	first := true
	for cur := head; cur != 0 && cur < len(toc.Fragments); {
		frag := toc.Fragments[cur]
		sectors += frag.LogicalEnd - frag.LogicalStart
		if first {
			isLP = frag.Flags&device.FlagSPMode == 0
			first = false
		}
		cur = frag.Next
	}

	if isLP {
		return sectors*(sectorBytesSP-lpPenalty) + headerBytesLP
	}
	return sectors*sectorBytesSP + headerBytesSP
}

// HiddenTrackID reports the file id encoded in a hidden-track title, for
// callers outside the package (e.g. the status CLI) that need to label a
// raw track listing without building a Cache.
func HiddenTrackID(title string) (int, bool) {
	return hiddenTrackID(title)
}

func hiddenTrackID(title string) (int, bool) {
	if len(title) != 7 || !strings.HasPrefix(title, "h_fs_") {
		return 0, false
	}
	v, err := strconv.ParseUint(title[5:], 16, 8)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// ResolveIDToIndex returns the on-disc index of the hidden track bound to
// id, or -1 if no such track exists.
func (c *Cache) ResolveIDToIndex(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := hiddenTitle(id)
	for _, t := range c.tracks {
		if t.Title == want {
			return t.Index
		}
	}
	return -1
}

// hiddenTitle formats the h_fs_XX title for track-id id.
func hiddenTitle(id int) string {
	return fmt.Sprintf("h_fs_%02x", id)
}

// Root returns the FS tree root. Callers on the single VFS dispatch thread
// may mutate it directly; background transfers never touch the tree.
func (c *Cache) Root() *fstree.Directory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// SetRoot replaces the FS tree root wholesale (used by /$system/tfs.bin
// writes).
func (c *Cache) SetRoot(root *fstree.Directory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = root
}

// NextFileID returns the smallest unused track-id in [0,256), or -1 if the
// disc is full.
func (c *Cache) NextFileID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextFileID >= fullTrackLimit {
		return -1
	}
	return c.nextFileID
}

// Tracks returns the last-refreshed disc track listing.
func (c *Cache) Tracks() []device.TrackInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]device.TrackInfo, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// SectorLength returns the userspace-visible byte size for audio track
// index, per the formula in spec §4.4.
func (c *Cache) SectorLength(index int) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackSectorLengths[index]
}

// AudioBuffer returns the cached streaming buffer for audio track index,
// creating it via newBuffer on first access.
func (c *Cache) AudioBuffer(index int, newBuffer func() *streambuf.Buffer) *streambuf.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.audioFileCache[index]; ok {
		return b
	}
	b := newBuffer()
	c.audioFileCache[index] = b
	return b
}

// DropAudioBuffer evicts any cached streaming buffer for index (the track
// was erased or replaced).
func (c *Cache) DropAudioBuffer(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.audioFileCache, index)
}

// Flush commits root to the device via committer, then reloads the
// snapshot via reader. Mirrors spec §4.4's flushCache: writeTOC followed by
// refreshCache.
func (c *Cache) Flush(ctx context.Context, committer TOCCommitter, reader DiscReader) error {
	if err := committer.WriteTOC(ctx, c.Root()); err != nil {
		return err
	}
	return c.RefreshCache(ctx, reader)
}
