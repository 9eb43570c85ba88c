// Package devicetest provides an in-memory fake device.Driver so the cache,
// transfer, and VFS packages can be tested without a real NetMD device.
//
// The fake keeps tracks, UTOC sectors, and fragments as plain Go values and
// models recovery as a buffered channel of chunks built up-front from the
// track's recorded payload, which is enough to exercise the streaming
// buffer's latch-and-wait behavior (spec §4.3, §8 property 6).
package devicetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/netmdfs/netmdfs/internal/device"
)

const sectorSize = 2352

// trackData is the fake's notion of a track: its title/encoding plus the
// raw payload bytes a recovery transfer would yield.
type trackData struct {
	title    string
	encoding device.Encoding
	fragment device.Fragment
	payload  []byte // raw bytes; header framing is added at recovery time
}

// Fake is a single-process fake NetMD driver. Each method guards the fake's
// own state with mu; serializing multi-step device sequences is left to the
// caller, as with the real coordinator's device lock.
type Fake struct {
	mu      sync.Mutex
	tracks  []trackData // index == on-disc track index
	sectors [3][]byte   // UTOC sectors 0,1,2

	// ChunkSize controls how the fake slices payloads into recovery chunks,
	// letting tests exercise partial-buffer reads.
	ChunkSize int
}

// New returns an empty fake disc: no tracks, zeroed UTOC sectors.
func New() *Fake {
	f := &Fake{ChunkSize: 256}
	for i := range f.sectors {
		f.sectors[i] = make([]byte, sectorSize)
	}
	return f
}

// SeedTrack adds a track at the next free index and returns its index.
func (f *Fake) SeedTrack(title string, enc device.Encoding, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.tracks)
	f.tracks = append(f.tracks, trackData{
		title:    title,
		encoding: enc,
		fragment: device.Fragment{Flags: device.FlagStereo | flagFor(enc), LogicalEnd: uint32(len(payload)/2352 + 1)},
		payload:  payload,
	})
	return idx
}

func flagFor(enc device.Encoding) uint8 {
	if enc == device.EncodingSP {
		return device.FlagSPMode
	}
	return 0
}

// SetUTOCSector2 installs raw bytes for UTOC sector 2 (used to seed an
// existing TFS payload, or deliberately malformed bytes for format-recovery
// tests).
func (f *Fake) SetUTOCSector2(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, sectorSize)
	copy(buf, data)
	f.sectors[2] = buf
}

func (f *Fake) ListTracks(ctx context.Context) ([]device.TrackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]device.TrackInfo, len(f.tracks))
	for i, t := range f.tracks {
		out[i] = device.TrackInfo{Index: i, Title: t.title, Encoding: t.encoding}
	}
	return out, nil
}

func (f *Fake) ReadUTOCSector(ctx context.Context, i int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i > 2 {
		return nil, fmt.Errorf("devicetest: bad UTOC sector %d", i)
	}
	out := make([]byte, sectorSize)
	copy(out, f.sectors[i])
	return out, nil
}

func (f *Fake) WriteUTOCSector(ctx context.Context, i int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i > 2 {
		return fmt.Errorf("devicetest: bad UTOC sector %d", i)
	}
	buf := make([]byte, sectorSize)
	copy(buf, data)
	f.sectors[i] = buf
	return nil
}

func (f *Fake) EraseTrack(ctx context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.tracks) {
		return fmt.Errorf("devicetest: no track %d", index)
	}
	f.tracks = append(f.tracks[:index], f.tracks[index+1:]...)
	return nil
}

func (f *Fake) DownloadTrackStream(ctx context.Context, index int, opts device.RecoveryOptions) (<-chan device.Chunk, func() error, error) {
	f.mu.Lock()
	if index < 0 || index >= len(f.tracks) {
		f.mu.Unlock()
		return nil, nil, fmt.Errorf("devicetest: no track %d", index)
	}
	payload := append([]byte(nil), f.tracks[index].payload...)
	chunkSize := f.ChunkSize
	f.mu.Unlock()

	ch := make(chan device.Chunk, 4)
	go func() {
		defer close(ch)
		if opts.AudioTrack {
			ch <- device.Chunk{Kind: device.ChunkHeader, Data: []byte("AEA-HEADER")}
		}
		for off := 0; off < len(payload); off += chunkSize {
			end := off + chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			select {
			case ch <- device.Chunk{Kind: device.ChunkAudioData, Data: payload[off:end]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, func() error { return nil }, nil
}

func (f *Fake) UploadTrack(ctx context.Context, name string, wireformat device.WireFormat, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, trackData{
		title:    name,
		encoding: device.EncodingLP2,
		fragment: device.Fragment{Flags: 0, LogicalEnd: uint32(len(data)/2352 + 1)},
		payload:  data,
	})
	return nil
}

func (f *Fake) ForceTOCCommit(ctx context.Context) error { return nil }

func (f *Fake) ParseTOC(sector0, sector1 []byte) (device.TOC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	toc := device.TOC{
		TrackMap:  make([]int, len(f.tracks)+1),
		Fragments: make([]device.Fragment, len(f.tracks)+1),
	}
	for i, t := range f.tracks {
		toc.TrackMap[i+1] = i + 1
		toc.Fragments[i+1] = t.fragment
	}
	return toc, nil
}

func (f *Fake) ReconstructTOC(t device.TOC) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 1; i < len(t.Fragments) && i-1 < len(f.tracks); i++ {
		f.tracks[i-1].fragment = t.Fragments[i]
	}
	return [][]byte{f.sectors[0], f.sectors[1]}, nil
}

func (f *Fake) DiscAddressToLogical(addr uint32) uint32 { return addr }

// Tracks returns a snapshot of the fake's current tracks, for assertions.
func (f *Fake) Tracks() []device.TrackInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]device.TrackInfo, len(f.tracks))
	for i, t := range f.tracks {
		out[i] = device.TrackInfo{Index: i, Title: t.title, Encoding: t.encoding}
	}
	return out
}

// FragmentFlags returns the current fragment flags for the track at index,
// for asserting mode-stamping (spec §8 property 6).
func (f *Fake) FragmentFlags(index int) (uint8, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.tracks) {
		return 0, false
	}
	return f.tracks[index].fragment.Flags, true
}

var _ device.Driver = (*Fake)(nil)
