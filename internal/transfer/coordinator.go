// Package transfer implements the transfer coordinator (spec §4.5): the
// sole caller of the device driver, serializing every device-touching
// operation behind one lock.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/logger"
	"github.com/netmdfs/netmdfs/internal/metrics"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"github.com/netmdfs/netmdfs/internal/tfscodec"
)

// minWritePayload is the smallest upload Coordinator.StartFileWriteTransfer
// will send; smaller writes are zero-padded up to it.
const minWritePayload = 2112

const sectorSize = 2352

// RefreshApplier receives the raw track listing and TOC an operation
// already fetched under the device lock, recomputing derived cache state
// without issuing further device reads. Implemented by *cache.Cache;
// declared here so transfer need not import package cache.
type RefreshApplier interface {
	ApplyRefresh(tracks []device.TrackInfo, toc device.TOC)
}

// Coordinator wraps a device.Driver. Every exported method acquires mu on
// entry and releases it on exit, including on error paths — no method is
// reentrant, so a method needing another device operation calls the driver
// directly rather than calling back into the Coordinator (spec §9).
type Coordinator struct {
	mu      sync.Mutex
	driver  device.Driver
	metrics *metrics.Collectors
}

// New returns a Coordinator over driver. m may be nil (metrics.NewNop()).
func New(driver device.Driver, m *metrics.Collectors) *Coordinator {
	return &Coordinator{driver: driver, metrics: m}
}

// StartReadTransfer drives a chunked recovery of the track at index into
// buf, filtering chunks per opts, and marks buf complete when the
// generator finishes (or fails). Intended to be invoked from a streambuf's
// Starter, itself run in its own goroutine so concurrent callers of
// buf.GetContents observe bytes arriving progressively.
func (c *Coordinator) StartReadTransfer(ctx context.Context, buf *streambuf.Buffer, index int, opts device.RecoveryOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("download_track_stream")

	ch, waitErr, err := c.driver.DownloadTrackStream(ctx, index, opts)
	if err != nil {
		buf.MarkComplete()
		return fmt.Errorf("transfer: start recovery for track %d: %w", index, err)
	}

	for chunk := range ch {
		switch chunk.Kind {
		case device.ChunkHeader:
			if opts.AudioTrack {
				buf.Append(chunk.Data)
				c.metrics.AddStreamingBytes("audio", len(chunk.Data))
			}
		case device.ChunkAudioData:
			buf.Append(chunk.Data)
			kind := "tfs"
			if opts.AudioTrack {
				kind = "audio"
			}
			c.metrics.AddStreamingBytes(kind, len(chunk.Data))
		}
	}
	buf.MarkComplete()

	if waitErr != nil {
		if err := waitErr(); err != nil {
			return fmt.Errorf("transfer: recovery for track %d failed: %w", index, err)
		}
	}
	return nil
}

// StartFileWriteTransfer zero-pads data to at least minWritePayload bytes
// and uploads it as an LP2 track named h_fs_XX.
func (c *Coordinator) StartFileWriteTransfer(ctx context.Context, id int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("upload_track")

	payload := data
	if len(payload) < minWritePayload {
		payload = make([]byte, minWritePayload)
		copy(payload, data)
	}

	name := fmt.Sprintf("h_fs_%02x", id)
	if err := c.driver.UploadTrack(ctx, name, device.WireFormatLP2, payload); err != nil {
		return fmt.Errorf("transfer: upload %s: %w", name, err)
	}
	return nil
}

// DeleteTrack erases the track at index, then re-fetches the listing and
// TOC under the same lock acquisition and hands them to applier so the
// cache snapshot reflects the erase without a second device op.
func (c *Coordinator) DeleteTrack(ctx context.Context, index int, applier RefreshApplier) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("erase_track")

	if err := c.driver.EraseTrack(ctx, index); err != nil {
		return fmt.Errorf("transfer: erase track %d: %w", index, err)
	}

	tracks, toc, err := c.fetchListingAndTOC(ctx)
	if err != nil {
		return err
	}
	applier.ApplyRefresh(tracks, toc)
	return nil
}

// WriteTOC re-stamps every hidden track's fragments, re-encodes root as
// the TFS record, and commits the whole UTOC in one read-modify-write
// cycle. Mode-bit stamping happens before the TFS payload is written so a
// hidden track is never exposed as writable in the committed TOC. The tree
// is encoded before any sector is written, so an overflow leaves the device
// untouched.
func (c *Coordinator) WriteTOC(ctx context.Context, root *fstree.Directory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("write_toc")
	start := time.Now()
	defer func() { c.metrics.ObserveFlushSeconds(time.Since(start).Seconds()) }()

	tracks, toc, err := c.fetchListingAndTOC(ctx)
	if err != nil {
		return err
	}

	for _, t := range tracks {
		if !isHiddenTitle(t.Title) {
			continue
		}
		stampFragmentChain(toc, t.Index)
	}

	encoded, err := tfscodec.Encode(root)
	if err != nil {
		return fmt.Errorf("transfer: encode tfs: %w", err)
	}

	sectors, err := c.driver.ReconstructTOC(toc)
	if err != nil {
		return fmt.Errorf("transfer: reconstruct toc: %w", err)
	}
	for i, sector := range sectors {
		if sector == nil {
			continue
		}
		if err := c.driver.WriteUTOCSector(ctx, i, sector); err != nil {
			return fmt.Errorf("transfer: write utoc sector %d: %w", i, err)
		}
	}

	sector2 := make([]byte, sectorSize)
	copy(sector2[tfscodec.Offset:], encoded)
	if err := c.driver.WriteUTOCSector(ctx, 2, sector2); err != nil {
		return fmt.Errorf("transfer: write utoc sector 2: %w", err)
	}

	if err := c.driver.ForceTOCCommit(ctx); err != nil {
		return fmt.Errorf("transfer: force toc commit: %w", err)
	}
	logger.Info("committed TFS flush", logger.KeyBytes, len(encoded))
	return nil
}

// stampFragmentChain walks the fragment chain for track index, setting
// SP_MODE and STEREO and clearing WRITABLE on every fragment.
func stampFragmentChain(toc device.TOC, index int) {
	if index+1 >= len(toc.TrackMap) {
		return
	}
	for cur := toc.TrackMap[index+1]; cur != 0 && cur < len(toc.Fragments); {
		frag := &toc.Fragments[cur]
		frag.Flags |= device.FlagSPMode | device.FlagStereo
		frag.Flags &^= device.FlagWritable
		cur = frag.Next
	}
}

func isHiddenTitle(title string) bool {
	return len(title) == 7 && bytes.HasPrefix([]byte(title), []byte("h_fs_"))
}

// fetchListingAndTOC issues the three reads GetDiscState/GetTOC would
// issue separately, but inline under the caller's already-held lock.
func (c *Coordinator) fetchListingAndTOC(ctx context.Context) ([]device.TrackInfo, device.TOC, error) {
	tracks, err := c.driver.ListTracks(ctx)
	if err != nil {
		return nil, device.TOC{}, fmt.Errorf("transfer: list tracks: %w", err)
	}
	s0, err := c.driver.ReadUTOCSector(ctx, 0)
	if err != nil {
		return nil, device.TOC{}, fmt.Errorf("transfer: read utoc sector 0: %w", err)
	}
	s1, err := c.driver.ReadUTOCSector(ctx, 1)
	if err != nil {
		return nil, device.TOC{}, fmt.Errorf("transfer: read utoc sector 1: %w", err)
	}
	toc, err := c.driver.ParseTOC(s0, s1)
	if err != nil {
		return nil, device.TOC{}, fmt.Errorf("transfer: parse toc: %w", err)
	}
	return tracks, toc, nil
}

// GetTFS reads UTOC sector 2 and parses the TFS record past OFFSET. A
// parse failure is reported as an empty root, not an error, matching
// Cache.Init's unformatted-disc handling.
func (c *Coordinator) GetTFS(ctx context.Context) (*fstree.Directory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("read_utoc_sector")

	sector2, err := c.driver.ReadUTOCSector(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("transfer: read utoc sector 2: %w", err)
	}
	var payload []byte
	if len(sector2) > tfscodec.Offset {
		payload = sector2[tfscodec.Offset:]
	}
	root, err := tfscodec.Decode(payload)
	if err != nil {
		return fstree.NewDirectory(""), nil
	}
	return root, nil
}

// GetDiscState is a lock-protected read-through to the driver's track
// listing.
func (c *Coordinator) GetDiscState(ctx context.Context) ([]device.TrackInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("list_tracks")
	return c.driver.ListTracks(ctx)
}

// GetTOC is a lock-protected read-through that parses the current UTOC.
func (c *Coordinator) GetTOC(ctx context.Context) (device.TOC, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.ObserveDeviceOp("read_utoc_sector")

	s0, err := c.driver.ReadUTOCSector(ctx, 0)
	if err != nil {
		return device.TOC{}, fmt.Errorf("transfer: read utoc sector 0: %w", err)
	}
	s1, err := c.driver.ReadUTOCSector(ctx, 1)
	if err != nil {
		return device.TOC{}, fmt.Errorf("transfer: read utoc sector 1: %w", err)
	}
	return c.driver.ParseTOC(s0, s1)
}
