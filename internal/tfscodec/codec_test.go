package tfscodec

import (
	"testing"

	"github.com/netmdfs/netmdfs/internal/fstree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, fileLen uint32) *fstree.Directory {
	t.Helper()
	root := fstree.NewDirectory("")
	sub := fstree.NewDirectory("music")
	sub.Add("track.bin", &fstree.Node{File: &fstree.File{TrackID: 3, Name: "track.bin", ByteLength: fileLen}})
	root.Add("music", &fstree.Node{Dir: sub})
	return root
}

func TestRoundTrip(t *testing.T) {
	for _, length := range []uint32{0, 0xFF, 0x100, 0xFFFF, 0x10000} {
		root := buildTree(t, length)
		encoded, err := Encode(root)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)

		child := decoded.GetChild("music")
		require.NotNil(t, child)
		require.NotNil(t, child.Dir)
		file := child.Dir.GetChild("track.bin")
		require.NotNil(t, file)
		require.NotNil(t, file.File)
		assert.Equal(t, length, file.File.ByteLength)
		assert.Equal(t, 3, file.File.TrackID)
	}
}

func TestEncodingWidths(t *testing.T) {
	cases := []struct {
		length    uint32
		wantTyp   byte
		wantBytes []byte
	}{
		{0xFF, 0, []byte{0xFF}},
		{0x100, 1, []byte{0x01, 0x00}},
		{0x10000, 2, []byte{0x01, 0x00, 0x00}},
	}
	for _, tc := range cases {
		root := fstree.NewDirectory("")
		root.Add("a.bin", &fstree.Node{File: &fstree.File{TrackID: 0, Name: "a.bin", ByteLength: tc.length}})
		encoded, err := Encode(root)
		require.NoError(t, err)

		// MAGIC(6) + dir tag(1) + root NameZ(1, empty name) + typ(1) + trackID(1)
		off := 6 + 1 + 1
		assert.Equal(t, tc.wantTyp, encoded[off])
		lenStart := off + 2
		assert.Equal(t, tc.wantBytes, encoded[lenStart:lenStart+len(tc.wantBytes)])
	}
}

func TestOverflow(t *testing.T) {
	root := fstree.NewDirectory("")
	for i := 0; i < 512; i++ {
		name := longName(i)
		root.Add(name, &fstree.Node{File: &fstree.File{TrackID: i % 256, Name: name, ByteLength: 1}})
	}
	_, err := Encode(root)
	require.Error(t, err)
	var overflow *OverflowError
	require.ErrorAs(t, err, &overflow)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0, 0, 0})
	require.Error(t, err)
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
}

func longName(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	n := i
	for j := range b {
		b[j] = alphabet[n%len(alphabet)]
		n /= len(alphabet)
	}
	return string(b)
}
