// Package errs defines the error taxonomy of the overlay filesystem (spec §7)
// and maps it to the errno values a host VFS binding returns to the kernel.
//
// Every VFSError extends the standard error interface and supports
// errors.Is()/errors.As() via Unwrap(), so callers can test for both the
// taxonomy-level error and, where present, the underlying cause.
package errs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind is one of the error categories from spec §7.
type Kind int

const (
	// NotFound — path resolution miss, or audio track not present.
	NotFound Kind = iota
	// PermissionDenied — writes to /$system without a writer; unlink of
	// /$system; rename onto an existing target; parent is not a directory.
	PermissionDenied
	// AccessDenied — unsupported open flag combination; op on invalidated fd.
	AccessDenied
	// NotEmpty — attempt to remove a non-empty directory.
	NotEmpty
	// IOError — device driver failure.
	IOError
	// FormatOverflow — TFS encoding exceeds the 2300-byte budget.
	FormatOverflow
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case AccessDenied:
		return "access denied"
	case NotEmpty:
		return "directory not empty"
	case IOError:
		return "device I/O error"
	case FormatOverflow:
		return "TFS encoding overflow"
	default:
		return "unknown error"
	}
}

// Errno is the syscall errno this Kind is reported as to the host VFS.
func (k Kind) Errno() unix.Errno {
	switch k {
	case NotFound:
		return unix.ENOENT
	case PermissionDenied:
		return unix.EPERM
	case AccessDenied:
		return unix.EACCES
	case NotEmpty:
		return unix.ENOTEMPTY
	case IOError, FormatOverflow:
		return unix.EIO
	default:
		return unix.EIO
	}
}

// VFSError is a taxonomy error, optionally wrapping an underlying cause.
type VFSError struct {
	Kind Kind
	Op   string // operation that failed, e.g. "open", "unlink"
	Path string // path involved, if any
	Err  error  // underlying cause, if any
}

func (e *VFSError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *VFSError) Unwrap() error { return e.Err }

// Errno returns the errno this error maps to for the host VFS binding.
func (e *VFSError) Errno() unix.Errno { return e.Kind.Errno() }

// New constructs a VFSError with no underlying cause.
func New(kind Kind, op, path string) *VFSError {
	return &VFSError{Kind: kind, Op: op, Path: path}
}

// Wrap constructs a VFSError wrapping an underlying cause.
func Wrap(kind Kind, op, path string, err error) *VFSError {
	return &VFSError{Kind: kind, Op: op, Path: path, Err: err}
}

// ToErrno extracts the errno a generic error should be reported as. Errors
// that aren't a *VFSError are reported as EIO, matching the "device driver
// failure propagates to the caller" policy of spec §7.
func ToErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var ve *VFSError
	if errors.As(err, &ve) {
		return ve.Errno()
	}
	return unix.EIO
}
