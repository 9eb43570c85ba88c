// Package tfscodec encodes and decodes the TFS binary record (spec §4.1):
// the directory tree embedded at a fixed offset in UTOC sector 2.
package tfscodec

import (
	"bytes"
	"fmt"

	"github.com/netmdfs/netmdfs/internal/fstree"
)

// Offset is where the TFS record begins within UTOC sector 2.
const Offset = 0x130

// MaxLen is the largest a TFS encoding may be; a longer encoding is a fatal
// overflow (spec invariant 3).
const MaxLen = 2300

var magic = [6]byte{0x8C, 0xB3, 0x96, 0xE9, 0x8D, 0xA2}

const (
	tagDir byte = 0xF0
	tagEnd byte = 0xFF
)

// OverflowError reports that encoding a tree exceeded MaxLen. The triggering
// operation must abort without writing to the device.
type OverflowError struct {
	Size int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("tfscodec: encoded size %d exceeds max %d", e.Size, MaxLen)
}

// FormatError reports a TFS parse failure: bad magic or an unrecognized
// record tag. Per spec §6.3, callers treat this as an unformatted disc
// rather than a hard error.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "tfscodec: " + e.Reason }

// Encode renders root as a TFS byte stream: MAGIC followed by its
// DirRecord. Returns *OverflowError if the result would exceed MaxLen.
func Encode(root *fstree.Directory) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := encodeDir(&buf, root); err != nil {
		return nil, err
	}
	if buf.Len() > MaxLen {
		return nil, &OverflowError{Size: buf.Len()}
	}
	return buf.Bytes(), nil
}

func encodeDir(buf *bytes.Buffer, dir *fstree.Directory) error {
	buf.WriteByte(tagDir)
	writeNameZ(buf, dir.Name)
	for _, child := range dir.Children() {
		if child.File != nil {
			if err := encodeFile(buf, child.File); err != nil {
				return err
			}
			continue
		}
		if err := encodeDir(buf, child.Dir); err != nil {
			return err
		}
	}
	buf.WriteByte(tagEnd)
	return nil
}

func encodeFile(buf *bytes.Buffer, f *fstree.File) error {
	typ, width := lengthWidth(f.ByteLength)
	buf.WriteByte(typ)
	buf.WriteByte(byte(f.TrackID))
	for i := width - 1; i >= 0; i-- {
		buf.WriteByte(byte(f.ByteLength >> (8 * i)))
	}
	writeNameZ(buf, f.Name)
	return nil
}

// lengthWidth picks the smallest typ (and its typ+1 byte width) that
// represents length.
func lengthWidth(length uint32) (typ byte, width int) {
	switch {
	case length <= 0xFF:
		return 0, 1
	case length <= 0xFFFF:
		return 1, 2
	case length <= 0xFFFFFF:
		return 2, 3
	default:
		return 3, 4
	}
}

func writeNameZ(buf *bytes.Buffer, name string) {
	buf.WriteString(name)
	buf.WriteByte(0)
}

// Decode parses a TFS byte stream into a directory tree.
func Decode(data []byte) (*fstree.Directory, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, &FormatError{Reason: "magic mismatch"}
	}
	pos := len(magic)
	root, err := parseDir(data, &pos)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func parseDir(data []byte, pos *int) (*fstree.Directory, error) {
	if *pos >= len(data) || data[*pos] != tagDir {
		return nil, &FormatError{Reason: "expected directory tag"}
	}
	*pos++
	name, err := readNameZ(data, pos)
	if err != nil {
		return nil, err
	}
	dir := fstree.NewDirectory(name)
	for {
		if *pos >= len(data) {
			return nil, &FormatError{Reason: "truncated directory"}
		}
		tag := data[*pos]
		switch {
		case tag == tagEnd:
			*pos++
			return dir, nil
		case tag == tagDir:
			child, err := parseDir(data, pos)
			if err != nil {
				return nil, err
			}
			dir.Add(child.Name, &fstree.Node{Dir: child})
		case tag <= 3:
			f, err := parseFile(data, pos)
			if err != nil {
				return nil, err
			}
			dir.Add(f.Name, &fstree.Node{File: f})
		default:
			return nil, &FormatError{Reason: fmt.Sprintf("unrecognized record tag 0x%02x", tag)}
		}
	}
}

func parseFile(data []byte, pos *int) (*fstree.File, error) {
	typ := data[*pos]
	*pos++
	width := int(typ) + 1
	if *pos+1+width > len(data) {
		return nil, &FormatError{Reason: "truncated file record"}
	}
	trackID := int(data[*pos])
	*pos++
	var length uint32
	for i := 0; i < width; i++ {
		length = length<<8 | uint32(data[*pos])
		*pos++
	}
	name, err := readNameZ(data, pos)
	if err != nil {
		return nil, err
	}
	return &fstree.File{TrackID: trackID, Name: name, ByteLength: length}, nil
}

func readNameZ(data []byte, pos *int) (string, error) {
	start := *pos
	for *pos < len(data) && data[*pos] != 0 {
		*pos++
	}
	if *pos >= len(data) {
		return "", &FormatError{Reason: "unterminated name"}
	}
	name := string(data[start:*pos])
	*pos++
	return name, nil
}
