// Package fstree is the in-memory directory model (spec §4.2): a tree of
// FSNode values recovered from, and re-encoded back into, the TFS record by
// package tfscodec.
package fstree

import (
	"strings"

	"github.com/netmdfs/netmdfs/internal/streambuf"
)

// File is a leaf node: one TFS-tracked file bound to a disc track-ID.
type File struct {
	TrackID    int
	Name       string
	ByteLength uint32
	// AudioTrack is true for files under /$audio (recovery keeps headers and
	// LP padding); false for ordinary TFS files (recovery strips them).
	AudioTrack bool
	Buffer     *streambuf.Buffer
}

// Directory is an interior node: a name plus an order-preserving set of
// children keyed by name. Child order isn't observable to users but must
// round-trip through TFS encoding, so children are kept in a slice rather
// than a bare map.
type Directory struct {
	Name     string
	children map[string]*Node
	order    []string
}

// Node is the tagged File/Directory variant. Exactly one of File or Dir is
// non-nil.
type Node struct {
	File *File
	Dir  *Directory
}

// NewDirectory returns an empty directory named name.
func NewDirectory(name string) *Directory {
	return &Directory{Name: name, children: make(map[string]*Node)}
}

// Add inserts child under name, replacing any existing entry of that name.
func (d *Directory) Add(name string, n *Node) {
	if _, exists := d.children[name]; !exists {
		d.order = append(d.order, name)
	}
	d.children[name] = n
}

// Remove deletes the child named name, if present.
func (d *Directory) Remove(name string) {
	if _, ok := d.children[name]; !ok {
		return
	}
	delete(d.children, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// GetChild returns the child named name, or nil if absent.
func (d *Directory) GetChild(name string) *Node {
	return d.children[name]
}

// Children returns the directory's entries in insertion order.
func (d *Directory) Children() []*Node {
	out := make([]*Node, len(d.order))
	for i, name := range d.order {
		out[i] = d.children[name]
	}
	return out
}

// Names returns the directory's child names in insertion order.
func (d *Directory) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Empty reports whether the directory has no children.
func (d *Directory) Empty() bool { return len(d.order) == 0 }

// Traverse walks path, split on "/" with empty fragments ignored, starting
// at root. Traversal stops at the first File encountered (which is
// returned even if path fragments remain), or returns the Directory at the
// final fragment. A missing intermediate child reports ok=false.
func Traverse(root *Directory, path string) (file *File, dir *Directory, ok bool) {
	dir = root
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" {
			continue
		}
		child := dir.GetChild(part)
		if child == nil {
			return nil, nil, false
		}
		if child.File != nil {
			return child.File, nil, true
		}
		dir = child.Dir
	}
	return nil, dir, true
}

// Parent traverses to the directory that would contain path, and the final
// path segment (the prospective child's name). Fails if any intermediate
// segment is missing or is itself a file.
func Parent(root *Directory, path string) (parent *Directory, name string, ok bool) {
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, "", false
	}
	dir := root
	for _, part := range parts[:len(parts)-1] {
		child := dir.GetChild(part)
		if child == nil || child.Dir == nil {
			return nil, "", false
		}
		dir = child.Dir
	}
	return dir, parts[len(parts)-1], true
}
