// Package fusebridge binds the VFS adapter to a real kernel mount via
// jacobsa/fuse. Everything upstream of this package (cache, transfer,
// vfs) is path-addressed; FUSE wants inode numbers, so this package's
// only job is maintaining the inode<->path table and translating
// fuseops calls into vfs.FS calls.
package fusebridge

import (
	"context"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/netmdfs/netmdfs/internal/errs"
	"github.com/netmdfs/netmdfs/internal/logger"
	"github.com/netmdfs/netmdfs/internal/vfs"
	"golang.org/x/sys/unix"
)

const rootInode = fuseops.RootInodeID

// Bridge implements fuseutil.FileSystem over a vfs.FS. Inode 1 is always
// "/"; every other inode is allocated the first time it is looked up and
// kept for the lifetime of the mount (inodes are never reused, matching
// the in-memory tree's small size).
type Bridge struct {
	fuseutil.NotImplementedFileSystem

	fs *vfs.FS

	mu       sync.Mutex
	nextID   fuseops.InodeID
	byInode  map[fuseops.InodeID]string
	byPath   map[string]fuseops.InodeID
}

// New wraps fs for serving over FUSE.
func New(fs *vfs.FS) *Bridge {
	b := &Bridge{
		fs:      fs,
		nextID:  rootInode,
		byInode: map[fuseops.InodeID]string{rootInode: "/"},
		byPath:  map[string]fuseops.InodeID{"/": rootInode},
	}
	return b
}

// Mount mounts b at mountpoint and blocks until it is unmounted or ctx is
// cancelled.
func Mount(ctx context.Context, fs *vfs.FS, mountpoint string) error {
	b := New(fs)
	server := fuseutil.NewFileSystemServer(b)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "netmdfs",
		ReadOnly: false,
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = fuse.Unmount(mountpoint)
	}()
	return mfs.Join(ctx)
}

func (b *Bridge) pathOf(inode fuseops.InodeID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.byInode[inode]
	return p, ok
}

// inodeFor returns the stable inode for p, allocating one if this is the
// first time p has been seen.
func (b *Bridge) inodeFor(p string) fuseops.InodeID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.byPath[p]; ok {
		return id
	}
	b.nextID++
	id := b.nextID
	b.byInode[id] = p
	b.byPath[p] = id
	return id
}

func join(parent, name string) string {
	return path.Clean("/" + strings.TrimPrefix(parent, "/") + "/" + name)
}

func toAttributes(st *vfs.Stat) fuseops.InodeAttributes {
	mode := os.FileMode(st.Mode & 0o777)
	if st.Mode&unix.S_IFDIR != 0 {
		mode |= os.ModeDir
	}
	return fuseops.InodeAttributes{
		Size:  st.Size,
		Nlink: st.Nlink,
		Mode:  mode,
	}
}

func (b *Bridge) attributesFor(ctx context.Context, p string) (fuseops.InodeAttributes, error) {
	st, err := b.fs.Getattr(ctx, p)
	if err != nil {
		return fuseops.InodeAttributes{}, errnoOf(err)
	}
	return toAttributes(st), nil
}

func (b *Bridge) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := b.pathOf(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := join(parent, op.Name)
	attrs, err := b.attributesFor(ctx, child)
	if err != nil {
		return err
	}
	op.Entry.Child = b.inodeFor(child)
	op.Entry.Attributes = attrs
	return nil
}

func (b *Bridge) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	p, ok := b.pathOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	attrs, err := b.attributesFor(ctx, p)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

func (b *Bridge) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	p, ok := b.pathOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if op.Size != nil {
		if err := b.fs.Truncate(ctx, p, *op.Size); err != nil {
			return errnoOf(err)
		}
	}
	attrs, err := b.attributesFor(ctx, p)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

func (b *Bridge) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	_, ok := b.pathOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	return nil
}

func (b *Bridge) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	p, ok := b.pathOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	names, err := b.fs.Readdir(ctx, p)
	if err != nil {
		return errnoOf(err)
	}

	var entries []fuseutil.Dirent
	for _, name := range names {
		child := join(p, name)
		attrs, err := b.attributesFor(ctx, child)
		if err != nil {
			continue
		}
		typ := fuseutil.DT_File
		if attrs.Mode&os.ModeDir != 0 {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  b.inodeFor(child),
			Name:   name,
			Type:   typ,
		})
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return nil
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (b *Bridge) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	p, ok := b.pathOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	flags := unix.O_RDONLY
	if op.OpenFlags&fuseops.OpenFlags(os.O_WRONLY) != 0 {
		flags = unix.O_WRONLY
	} else if op.OpenFlags&fuseops.OpenFlags(os.O_RDWR) != 0 {
		flags = unix.O_RDWR
	}
	fd, err := b.fs.Open(ctx, p, flags)
	if err != nil {
		return errnoOf(err)
	}
	op.Handle = fuseops.HandleID(fd)
	return nil
}

func (b *Bridge) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parent, ok := b.pathOf(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := join(parent, op.Name)
	fd, err := b.fs.Create(ctx, child)
	if err != nil {
		return errnoOf(err)
	}
	attrs, err := b.attributesFor(ctx, child)
	if err != nil {
		return err
	}
	op.Entry.Child = b.inodeFor(child)
	op.Entry.Attributes = attrs
	op.Handle = fuseops.HandleID(fd)
	return nil
}

func (b *Bridge) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	data, err := b.fs.Read(ctx, int(op.Handle), int(op.Offset), len(op.Dst))
	if err != nil {
		return errnoOf(err)
	}
	op.BytesRead = copy(op.Dst, data)
	if op.BytesRead == 0 && len(data) == 0 {
		return nil // FUSE treats a short read as EOF, not io.EOF
	}
	return nil
}

func (b *Bridge) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	_, err := b.fs.Write(ctx, int(op.Handle), int(op.Offset), len(op.Data), op.Data)
	if err != nil {
		return errnoOf(err)
	}
	return nil
}

func (b *Bridge) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (b *Bridge) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	if err := b.fs.Release(ctx, int(op.Handle)); err != nil {
		logger.WarnCtx(ctx, "release failed", logger.KeyError, err.Error())
	}
	return nil
}

func (b *Bridge) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := b.pathOf(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := join(parent, op.Name)
	if err := b.fs.Mkdir(ctx, child); err != nil {
		return errnoOf(err)
	}
	attrs, err := b.attributesFor(ctx, child)
	if err != nil {
		return err
	}
	op.Entry.Child = b.inodeFor(child)
	op.Entry.Attributes = attrs
	return nil
}

func (b *Bridge) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	parent, ok := b.pathOf(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := join(parent, op.Name)
	if err := b.fs.Unlink(ctx, child); err != nil {
		return errnoOf(err)
	}
	b.mu.Lock()
	delete(b.byInode, b.byPath[child])
	delete(b.byPath, child)
	b.mu.Unlock()
	return nil
}

func (b *Bridge) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	parent, ok := b.pathOf(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := join(parent, op.Name)
	if err := b.fs.Unlink(ctx, child); err != nil {
		return errnoOf(err)
	}
	return nil
}

func (b *Bridge) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldParent, ok := b.pathOf(op.OldParent)
	if !ok {
		return fuse.ENOENT
	}
	newParent, ok := b.pathOf(op.NewParent)
	if !ok {
		return fuse.ENOENT
	}
	src := join(oldParent, op.OldName)
	dst := join(newParent, op.NewName)
	if err := b.fs.Rename(ctx, src, dst); err != nil {
		return errnoOf(err)
	}
	b.mu.Lock()
	if id, ok := b.byPath[src]; ok {
		delete(b.byPath, src)
		b.byPath[dst] = id
		b.byInode[id] = dst
	}
	b.mu.Unlock()
	return nil
}

func (b *Bridge) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

func (b *Bridge) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 2352
	op.IoSize = 2352
	return nil
}

// errnoOf maps a VFSError to the syscall.Errno jacobsa/fuse expects back
// from a FileSystem method.
func errnoOf(err error) error {
	if err == nil {
		return nil
	}
	return syscall.Errno(errs.ToErrno(err))
}
