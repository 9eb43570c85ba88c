package logger

// Standard field keys for structured logging, kept consistent across every
// VFS and transfer log line so they can be aggregated/queried uniformly.
const (
	KeyOperation = "op"        // VFS operation name: open, read, write, mkdir, ...
	KeyPath      = "path"      // full overlay-tree path
	KeyOldPath   = "old_path"  // rename source
	KeyNewPath   = "new_path"  // rename destination
	KeyTrackID   = "track_id"  // TFS track id (0..255)
	KeyIndex     = "index"     // on-disc track index
	KeyFD        = "fd"        // file-handle table slot
	KeyOffset    = "offset"    // read/write offset
	KeyCount     = "count"     // byte count requested
	KeyBytes     = "bytes"     // actual bytes transferred
	KeyDuration  = "duration"  // operation duration
	KeyError     = "error"     // error message
	KeyTransfer  = "transfer"  // transfer correlation id (uuid)
)
