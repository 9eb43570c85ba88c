package vfs

import (
	"context"

	"github.com/netmdfs/netmdfs/internal/device"
	"github.com/netmdfs/netmdfs/internal/errs"
	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/netmdfs/netmdfs/internal/logger"
	"github.com/netmdfs/netmdfs/internal/streambuf"
	"golang.org/x/sys/unix"
)

// Getattr returns file metadata for path (spec §4.6).
func (fs *FS) Getattr(ctx context.Context, path string) (*Stat, error) {
	kind, rest := classify(path)
	switch kind {
	case routeRoot, routeAudioDir, routeSystemDir:
		return &Stat{Mode: unix.S_IFDIR | 0o777, Nlink: 1}, nil

	case routeAudioFile:
		idx, _, ok := fs.lookupAudio(rest)
		if !ok {
			return nil, errs.New(errs.NotFound, "getattr", path)
		}
		return &Stat{Mode: unix.S_IFREG | 0o555, Size: uint64(fs.cache.SectorLength(idx)), Nlink: 1}, nil

	case routeSystemFile:
		info, ok := systemFiles[rest]
		if !ok {
			return nil, errs.New(errs.NotFound, "getattr", path)
		}
		mode := uint32(unix.S_IFREG | 0o111)
		var size uint64
		if info.Readable {
			mode |= 0o444
			if payload, err := fs.renderSystemFile(ctx, rest); err == nil {
				size = uint64(len(payload))
			}
		}
		if info.Writable {
			mode |= 0o222
		}
		return &Stat{Mode: mode, Size: size, Nlink: 1}, nil

	case routeTFS:
		file, _, ok := fstree.Traverse(fs.cache.Root(), rest)
		if !ok {
			return nil, errs.New(errs.NotFound, "getattr", path)
		}
		if file != nil {
			return &Stat{Mode: unix.S_IFREG | 0o777, Size: uint64(file.ByteLength), Nlink: 1}, nil
		}
		return &Stat{Mode: unix.S_IFDIR | 0o777, Nlink: 1}, nil

	default:
		return nil, errs.New(errs.NotFound, "getattr", path)
	}
}

// Readdir lists the children of a directory path.
func (fs *FS) Readdir(ctx context.Context, path string) ([]string, error) {
	kind, rest := classify(path)
	switch kind {
	case routeRoot:
		names := []string{"$audio", "$system"}
		return append(names, fs.cache.Root().Names()...), nil
	case routeAudioDir:
		return fs.audioNames(), nil
	case routeSystemDir:
		return systemFileNames(), nil
	case routeTFS:
		_, dir, ok := fstree.Traverse(fs.cache.Root(), rest)
		if !ok || dir == nil {
			return nil, errs.New(errs.NotFound, "readdir", path)
		}
		return dir.Names(), nil
	default:
		return nil, errs.New(errs.NotFound, "readdir", path)
	}
}

// Open validates flags (only O_RDONLY/O_WRONLY are accepted) and returns a
// new file-handle id.
func (fs *FS) Open(ctx context.Context, path string, flags int) (int, error) {
	mask := flags & 0x3
	kind, rest := classify(path)

	switch kind {
	case routeAudioFile:
		if mask != unix.O_RDONLY {
			return -1, errs.New(errs.AccessDenied, "open", path)
		}
		idx, _, ok := fs.lookupAudio(rest)
		if !ok {
			return -1, errs.New(errs.NotFound, "open", path)
		}
		buf := fs.cache.AudioBuffer(idx, func() *streambuf.Buffer {
			b := streambuf.New(nil)
			b.Starter = func() {
				go fs.coord.StartReadTransfer(context.Background(), b, idx, device.RecoveryOptions{AudioTrack: true})
			}
			return b
		})
		return fs.handles.alloc(&Handle{Path: path, Kind: handleRead, Reader: &streamReader{buf: buf}}), nil

	case routeSystemFile:
		info, ok := systemFiles[rest]
		if !ok {
			return -1, errs.New(errs.NotFound, "open", path)
		}
		switch mask {
		case unix.O_RDONLY:
			if !info.Readable {
				return -1, errs.New(errs.PermissionDenied, "open", path)
			}
			payload, err := fs.renderSystemFile(ctx, rest)
			if err != nil {
				return -1, err
			}
			return fs.handles.alloc(&Handle{Path: path, Kind: handleRead, Reader: &staticReader{data: payload}}), nil
		case unix.O_WRONLY:
			if !info.Writable {
				return -1, errs.New(errs.PermissionDenied, "open", path)
			}
			return fs.handles.alloc(&Handle{Path: path, Kind: handleWrite, Target: &systemWriteTarget{fs: fs, name: rest}}), nil
		default:
			return -1, errs.New(errs.AccessDenied, "open", path)
		}

	case routeTFS:
		switch mask {
		case unix.O_RDONLY:
			file, _, ok := fstree.Traverse(fs.cache.Root(), rest)
			if !ok || file == nil {
				return -1, errs.New(errs.NotFound, "open", path)
			}
			return fs.handles.alloc(&Handle{Path: path, Kind: handleRead, Reader: &streamReader{buf: fs.tfsBuffer(file)}}), nil
		case unix.O_WRONLY:
			return fs.openWriteTFS(ctx, path, rest)
		default:
			return -1, errs.New(errs.AccessDenied, "open", path)
		}

	default:
		return -1, errs.New(errs.NotFound, "open", path)
	}
}

// openWriteTFS implements the create-or-truncate write-open semantics for
// an ordinary TFS path. The erase of any prior backing track happens
// synchronously here, under the transfer coordinator's lock, so by the time
// Open returns the node's old track is already gone. The upload and flush
// that follow at Release each take the lock on their own; no single lock
// acquisition spans the whole erase, upload and flush sequence.
func (fs *FS) openWriteTFS(ctx context.Context, path, rest string) (int, error) {
	parent, name, ok := fstree.Parent(fs.cache.Root(), rest)
	if !ok {
		return -1, errs.New(errs.PermissionDenied, "open", path)
	}

	existing := parent.GetChild(name)
	if existing != nil && existing.Dir != nil {
		return -1, errs.New(errs.PermissionDenied, "open", path)
	}

	var file *fstree.File
	if existing != nil {
		file = existing.File
		if file.ByteLength > 0 {
			if idx := fs.cache.ResolveIDToIndex(file.TrackID); idx >= 0 {
				if err := fs.coord.DeleteTrack(ctx, idx, fs.cache); err != nil {
					return -1, errs.Wrap(errs.IOError, "open", path, err)
				}
			}
			file.ByteLength = 0
			file.Buffer = nil
		}
	} else {
		id := fs.cache.NextFileID()
		if id < 0 {
			return -1, errs.New(errs.IOError, "open", path)
		}
		file = &fstree.File{TrackID: id, Name: name}
		parent.Add(name, &fstree.Node{File: file})
	}

	return fs.handles.alloc(&Handle{
		Path:     path,
		Kind:     handleWrite,
		Target:   &tfsWriteTarget{fs: fs, file: file},
		LiveFile: file,
	}), nil
}

// Create allocates a new TFS file and returns a write handle (spec §4.6).
func (fs *FS) Create(ctx context.Context, path string) (int, error) {
	kind, rest := classify(path)
	switch kind {
	case routeAudioFile, routeAudioDir:
		return -1, errs.New(errs.PermissionDenied, "create", path)
	case routeSystemFile, routeSystemDir:
		return -1, errs.New(errs.PermissionDenied, "create", path)
	case routeTFS:
		return fs.openWriteTFS(ctx, path, rest)
	default:
		return -1, errs.New(errs.PermissionDenied, "create", path)
	}
}

// Read returns up to length bytes at offset from an open read handle.
func (fs *FS) Read(ctx context.Context, fd, offset, length int) ([]byte, error) {
	h, ok := fs.handles.get(fd)
	if !ok || h.Kind != handleRead {
		return nil, errs.New(errs.AccessDenied, "read", "")
	}
	return h.Reader.ReadAt(ctx, offset, length)
}

// Write extends the handle's buffer to at least offset+length and copies
// data in.
func (fs *FS) Write(ctx context.Context, fd, offset, length int, data []byte) (int, error) {
	h, ok := fs.handles.get(fd)
	if !ok || h.Kind != handleWrite {
		return 0, errs.New(errs.AccessDenied, "write", "")
	}
	return h.writeAt(offset, length, data), nil
}

// Release seals a write handle (uploading and flushing if any bytes were
// written) and invalidates fd either way.
func (fs *FS) Release(ctx context.Context, fd int) error {
	h, ok := fs.handles.get(fd)
	if !ok {
		return errs.New(errs.AccessDenied, "release", "")
	}
	defer fs.handles.free(fd)

	if h.Kind != handleWrite {
		return nil
	}
	if err := h.Target.Complete(ctx, h.WriteBuf); err != nil {
		logger.ErrorCtx(ctx, "release failed to complete write", logger.KeyPath, h.Path, logger.KeyError, err.Error())
		return err
	}
	return nil
}

// Unlink removes path (spec §4.6).
func (fs *FS) Unlink(ctx context.Context, path string) error {
	kind, rest := classify(path)
	switch kind {
	case routeSystemFile, routeSystemDir:
		return errs.New(errs.PermissionDenied, "unlink", path)
	case routeAudioFile:
		idx, _, ok := fs.lookupAudio(rest)
		if !ok {
			return errs.New(errs.NotFound, "unlink", path)
		}
		return fs.coord.DeleteTrack(ctx, idx, fs.cache)
	case routeTFS:
		parent, name, ok := fstree.Parent(fs.cache.Root(), rest)
		if !ok {
			return errs.New(errs.NotFound, "unlink", path)
		}
		child := parent.GetChild(name)
		if child == nil {
			return errs.New(errs.NotFound, "unlink", path)
		}
		if child.Dir != nil {
			if !child.Dir.Empty() {
				return errs.New(errs.NotEmpty, "unlink", path)
			}
			parent.Remove(name)
			return nil
		}
		f := child.File
		parent.Remove(name)
		if f.ByteLength > 0 {
			if idx := fs.cache.ResolveIDToIndex(f.TrackID); idx >= 0 {
				return fs.coord.DeleteTrack(ctx, idx, fs.cache)
			}
		}
		return nil
	default:
		return errs.New(errs.NotFound, "unlink", path)
	}
}

// Mkdir adds an empty directory under path's parent.
func (fs *FS) Mkdir(ctx context.Context, path string) error {
	kind, rest := classify(path)
	if kind != routeTFS {
		return errs.New(errs.PermissionDenied, "mkdir", path)
	}
	parent, name, ok := fstree.Parent(fs.cache.Root(), rest)
	if !ok {
		return errs.New(errs.PermissionDenied, "mkdir", path)
	}
	if parent.GetChild(name) != nil {
		return errs.New(errs.PermissionDenied, "mkdir", path)
	}
	parent.Add(name, &fstree.Node{Dir: fstree.NewDirectory(name)})
	return nil
}

// Rename moves src to dest within the TFS tree. No device I/O; the move is
// persisted by the next flush.
func (fs *FS) Rename(ctx context.Context, src, dest string) error {
	ks, _ := classify(src)
	kd, _ := classify(dest)
	if ks != routeTFS || kd != routeTFS {
		return errs.New(errs.PermissionDenied, "rename", src)
	}

	srcParent, srcName, ok := fstree.Parent(fs.cache.Root(), src)
	if !ok {
		return errs.New(errs.NotFound, "rename", src)
	}
	node := srcParent.GetChild(srcName)
	if node == nil {
		return errs.New(errs.NotFound, "rename", src)
	}

	destParent, destName, ok := fstree.Parent(fs.cache.Root(), dest)
	if !ok {
		return errs.New(errs.PermissionDenied, "rename", dest)
	}
	if destParent.GetChild(destName) != nil {
		return errs.New(errs.PermissionDenied, "rename", dest)
	}

	srcParent.Remove(srcName)
	if node.File != nil {
		node.File.Name = destName
	} else {
		node.Dir.Name = destName
	}
	destParent.Add(destName, node)
	return nil
}

// Truncate is a no-op per spec §4.6: writes always grow the buffer, and
// sparse truncation isn't supported.
func (fs *FS) Truncate(ctx context.Context, path string, size uint64) error {
	return nil
}

// tfsBuffer lazily starts a raw (header-stripped) recovery of an existing
// TFS file's backing track, latched per-File so concurrent readers share
// one transfer.
func (fs *FS) tfsBuffer(file *fstree.File) *streambuf.Buffer {
	fs.fileBufMu.Lock()
	defer fs.fileBufMu.Unlock()
	if file.Buffer != nil {
		return file.Buffer
	}
	buf := streambuf.New(nil)
	trackID := file.TrackID
	buf.Starter = func() {
		idx := fs.cache.ResolveIDToIndex(trackID)
		if idx < 0 {
			buf.MarkComplete()
			return
		}
		go fs.coord.StartReadTransfer(context.Background(), buf, idx, device.RecoveryOptions{AudioTrack: false})
	}
	file.Buffer = buf
	return buf
}

// tfsWriteTarget implements writeTarget for ordinary TFS file writes.
type tfsWriteTarget struct {
	fs   *FS
	file *fstree.File
}

func (w *tfsWriteTarget) Complete(ctx context.Context, data []byte) error {
	w.file.ByteLength = uint32(len(data))
	if len(data) == 0 {
		return nil
	}
	if err := w.fs.coord.StartFileWriteTransfer(ctx, w.file.TrackID, data); err != nil {
		return err
	}
	return w.fs.cache.Flush(ctx, w.fs.coord, w.fs.coord)
}
