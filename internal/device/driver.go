// Package device defines the NetMD device driver collaborator (spec §6.2)
// and the TOC/fragment data it exposes. The driver itself — USB command
// framing, ATRAC packet encryption, the recovery exploits — is out of scope
// for this module (spec §1); only the interface and the wire structures the
// rest of the system needs to interpret are defined here.
package device

import "context"

// Fragment bit flags, set on TOC fragments (spec §4.5, §6.3).
const (
	FlagSPMode   uint8 = 1 << 0 // SP_MODE: set for full-rate stereo ATRAC
	FlagStereo   uint8 = 1 << 1 // STEREO
	FlagWritable uint8 = 1 << 2 // WRITABLE: clear on hidden TFS tracks
)

// Encoding identifies a track's on-disc audio encoding.
type Encoding int

const (
	EncodingSP Encoding = iota
	EncodingLP
	EncodingLP2
)

// TrackInfo is a single entry from Driver.ListTracks.
type TrackInfo struct {
	Index    int
	Title    string // empty/untitled tracks report ""
	Encoding Encoding
}

// Fragment is one physical span of sectors in a track's fragment chain.
type Fragment struct {
	Next         int // index of next fragment in chain, 0 terminates
	LogicalStart uint32
	LogicalEnd   uint32
	Flags        uint8
}

// TOC is the parsed contents of UTOC sectors 0 and 1: per-track fragment
// chain heads and the fragment table itself.
type TOC struct {
	// TrackMap[i] is the fragment-table index of the head fragment for
	// track i (1-based; TrackMap[i+1] is track i's head per spec §4.4).
	TrackMap []int
	// Fragments is the fragment table; Fragments[0] is unused (0 is the
	// chain terminator).
	Fragments []Fragment
}

// ChunkKind distinguishes what a recovery-stream chunk carries.
type ChunkKind int

const (
	ChunkHeader ChunkKind = iota
	ChunkAudioData
	ChunkOther
)

// Chunk is one unit yielded by a recovery stream.
type Chunk struct {
	Kind ChunkKind
	Data []byte
}

// RecoveryOptions configures a track recovery (read) transfer.
type RecoveryOptions struct {
	// AudioTrack selects ATRAC-file recovery: headers are emitted and LP
	// padding is preserved. When false (TFS-hidden tracks), headers are
	// suppressed and LP padding is stripped, producing raw payload bytes.
	AudioTrack bool
}

// WireFormat is the upload encoding for Driver.UploadTrack.
type WireFormat int

const (
	WireFormatLP2 WireFormat = iota
)

// Driver is the opaque device-driver collaborator. Every method may block on
// USB I/O; callers are expected to serialize access to a single Driver
// themselves (the transfer coordinator's device lock, spec §5).
type Driver interface {
	ListTracks(ctx context.Context) ([]TrackInfo, error)

	// ReadUTOCSector returns the 2352 raw bytes of UTOC sector i, i in {0,1,2}.
	ReadUTOCSector(ctx context.Context, i int) ([]byte, error)
	WriteUTOCSector(ctx context.Context, i int, data []byte) error

	EraseTrack(ctx context.Context, index int) error

	// DownloadTrackStream starts a chunked ATRAC-recovery transfer for the
	// track at index and returns a channel of chunks, closed when the
	// transfer completes. A read error aborts the transfer and is returned
	// out of band via the returned error func, checked after the channel
	// closes.
	DownloadTrackStream(ctx context.Context, index int, opts RecoveryOptions) (<-chan Chunk, func() error, error)

	// UploadTrack uploads data as a new track named name, encoded as wireformat.
	UploadTrack(ctx context.Context, name string, wireformat WireFormat, data []byte) error

	// ForceTOCCommit persists the in-memory UTOC to the physical TOC.
	ForceTOCCommit(ctx context.Context) error

	ParseTOC(sector0, sector1 []byte) (TOC, error)
	ReconstructTOC(t TOC) ([][]byte, error)
	DiscAddressToLogical(addr uint32) uint32
}
