// Package vfs is the VFS adapter (spec §4.6): it translates host filesystem
// callbacks into Cache and transfer-coordinator operations, routes paths
// across the /$audio, /$system, and TFS namespaces, and owns the
// file-handle table.
package vfs

import (
	"context"
	"sync"

	"github.com/netmdfs/netmdfs/internal/cache"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/metrics"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"github.com/netmdfs/netmdfs/internal/transfer"
)

// Stat is the subset of file metadata getattr reports.
type Stat struct {
	Mode  uint32
	Size  uint64
	Nlink uint32
}

type handleKind int

const (
	handleRead handleKind = iota
	handleWrite
)

// reader serves bytes for a read handle, backed either by a streaming
// buffer (audio/TFS tracks still being recovered) or a static payload
// (/$system reads).
type reader interface {
	ReadAt(ctx context.Context, start, length int) ([]byte, error)
}

type staticReader struct{ data []byte }

func (s *staticReader) ReadAt(ctx context.Context, start, length int) ([]byte, error) {
	if start >= len(s.data) {
		return nil, nil
	}
	end := start + length
	if end > len(s.data) {
		end = len(s.data)
	}
	out := make([]byte, end-start)
	copy(out, s.data[start:end])
	return out, nil
}

type streamReader struct{ buf *streambuf.Buffer }

func (s *streamReader) ReadAt(ctx context.Context, start, length int) ([]byte, error) {
	return s.buf.GetContents(ctx, start, length)
}

// writeTarget is invoked at release() with the fully accumulated write
// buffer.
type writeTarget interface {
	Complete(ctx context.Context, data []byte) error
}

// Handle is one entry in the file-handle table.
type Handle struct {
	Path     string
	Kind     handleKind
	Reader   reader
	WriteBuf []byte
	Target   writeTarget
	// LiveFile, when set, is kept in sync with WriteBuf's length on every
	// Write so getattr mid-write reports a growing size.
	LiveFile *fstree.File
}

func (h *Handle) writeAt(offset, length int, data []byte) int {
	need := offset + length
	if need > len(h.WriteBuf) {
		grown := make([]byte, need)
		copy(grown, h.WriteBuf)
		h.WriteBuf = grown
	}
	copy(h.WriteBuf[offset:offset+length], data[:length])
	if h.LiveFile != nil {
		h.LiveFile.ByteLength = uint32(len(h.WriteBuf))
	}
	return length
}

// handleTable is a tombstone-slotted vector of handles, guarded by a
// single small lock (spec §4.6, §5).
type handleTable struct {
	mu      sync.Mutex
	slots   []*Handle
	metrics *metrics.Collectors
}

func (t *handleTable) alloc(h *Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fd int
	found := false
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = h
			fd, found = i, true
			break
		}
	}
	if !found {
		t.slots = append(t.slots, h)
		fd = len(t.slots) - 1
	}
	t.metrics.SetOpenHandles(t.liveCount())
	return fd
}

// liveCount must be called with mu held.
func (t *handleTable) liveCount() int {
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func (t *handleTable) get(fd int) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, false
	}
	return t.slots[fd], true
}

func (t *handleTable) free(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd >= 0 && fd < len(t.slots) {
		t.slots[fd] = nil
	}
	t.metrics.SetOpenHandles(t.liveCount())
}

func (t *handleTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveCount()
}

// snapshot returns one "<index>\t<path or <INVL>>" line per slot.
func (t *handleTable) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.slots))
	for i, s := range t.slots {
		if s == nil {
			out[i] = tombstoneLine(i)
			continue
		}
		out[i] = handleLine(i, s.Path)
	}
	return out
}

// FS is the VFS adapter.
type FS struct {
	cache   *cache.Cache
	coord   *transfer.Coordinator
	metrics *metrics.Collectors
	handles handleTable

	fileBufMu sync.Mutex
}

// New returns a VFS adapter over cache and coord. m may be nil.
func New(c *cache.Cache, coord *transfer.Coordinator, m *metrics.Collectors) *FS {
	return &FS{cache: c, coord: coord, metrics: m, handles: handleTable{metrics: m}}
}
