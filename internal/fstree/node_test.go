package fstree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample() *Directory {
	root := NewDirectory("")
	sub := NewDirectory("music")
	sub.Add("track.bin", &Node{File: &File{TrackID: 1, Name: "track.bin", ByteLength: 4}})
	root.Add("music", &Node{Dir: sub})
	root.Add("top.bin", &Node{File: &File{TrackID: 2, Name: "top.bin"}})
	return root
}

func TestTraverseFindsNestedFile(t *testing.T) {
	root := buildSample()
	file, dir, ok := Traverse(root, "/music/track.bin")
	require.True(t, ok)
	assert.Nil(t, dir)
	require.NotNil(t, file)
	assert.Equal(t, 1, file.TrackID)
}

func TestTraverseReturnsDirectory(t *testing.T) {
	root := buildSample()
	file, dir, ok := Traverse(root, "/music")
	require.True(t, ok)
	assert.Nil(t, file)
	require.NotNil(t, dir)
	assert.Equal(t, "music", dir.Name)
}

func TestTraverseMissingIntermediate(t *testing.T) {
	root := buildSample()
	_, _, ok := Traverse(root, "/nope/track.bin")
	assert.False(t, ok)
}

func TestTraverseStopsAtFile(t *testing.T) {
	root := buildSample()
	file, _, ok := Traverse(root, "/top.bin/extra")
	require.True(t, ok)
	require.NotNil(t, file)
	assert.Equal(t, 2, file.TrackID)
}

func TestParentSplitsLastSegment(t *testing.T) {
	root := buildSample()
	parent, name, ok := Parent(root, "/music/new.bin")
	require.True(t, ok)
	assert.Equal(t, "new.bin", name)
	assert.Equal(t, "music", parent.Name)
}

func TestRemoveAndEmpty(t *testing.T) {
	root := NewDirectory("")
	assert.True(t, root.Empty())
	root.Add("a", &Node{File: &File{Name: "a"}})
	assert.False(t, root.Empty())
	root.Remove("a")
	assert.True(t, root.Empty())
}

func TestChildOrderPreserved(t *testing.T) {
	root := NewDirectory("")
	root.Add("b", &Node{File: &File{Name: "b"}})
	root.Add("a", &Node{File: &File{Name: "a"}})
	assert.Equal(t, []string{"b", "a"}, root.Names())
}
