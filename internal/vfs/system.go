package vfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/netmdfs/netmdfs/internal/errs"
	"github.com/netmdfs/netmdfs/internal/tfscodec"
)

// systemFileInfo describes one /$system entry's access (spec §6.4).
type systemFileInfo struct {
	Readable bool
	Writable bool
}

var systemFiles = map[string]systemFileInfo{
	"info":                   {Readable: true},
	"handles":                {Readable: true},
	"tfs.bin":                {Readable: true, Writable: true},
	"force_immediate_flush": {Writable: true},
}

// systemFileNames lists /$system's fixed table in a stable order.
func systemFileNames() []string {
	return []string{"info", "handles", "tfs.bin", "force_immediate_flush"}
}

func tombstoneLine(i int) string { return fmt.Sprintf("%d\t<INVL>\n", i) }
func handleLine(i int, path string) string { return fmt.Sprintf("%d\t%s\n", i, path) }

// renderSystemFile produces the current payload for a readable /$system
// entry.
func (fs *FS) renderSystemFile(ctx context.Context, name string) ([]byte, error) {
	switch name {
	case "info":
		return []byte("netmdfs overlay filesystem\n"), nil
	case "handles":
		return []byte(strings.Join(fs.handles.snapshot(), "")), nil
	case "tfs.bin":
		data, err := tfscodec.Encode(fs.cache.Root())
		if err != nil {
			return nil, errs.Wrap(errs.FormatOverflow, "read", "/$system/tfs.bin", err)
		}
		return data, nil
	default:
		return nil, errs.New(errs.PermissionDenied, "read", "/$system/"+name)
	}
}

// systemWriteTarget implements writeTarget for /$system/tfs.bin and
// /$system/force_immediate_flush.
type systemWriteTarget struct {
	fs   *FS
	name string
}

func (w *systemWriteTarget) Complete(ctx context.Context, data []byte) error {
	switch w.name {
	case "tfs.bin":
		root, err := tfscodec.Decode(data)
		if err != nil {
			return errs.Wrap(errs.IOError, "write", "/$system/tfs.bin", err)
		}
		w.fs.cache.SetRoot(root)
		return nil
	case "force_immediate_flush":
		return w.fs.cache.Flush(ctx, w.fs.coord, w.fs.coord)
	default:
		return errs.New(errs.PermissionDenied, "write", "/$system/"+w.name)
	}
}
