package vfs

import (
	"fmt"
	"strings"

	"github.com/netmdfs/netmdfs/internal/device"
)

type routeKind int

const (
	routeRoot routeKind = iota
	routeAudioDir
	routeAudioFile
	routeSystemDir
	routeSystemFile
	routeTFS
	routeInvalid
)

// classify splits path into segments and decides which namespace it
// belongs to. rest is the TFS-relative path (unchanged) for routeTFS, or
// the single path segment under $audio/$system for the file routes.
func classify(path string) (kind routeKind, rest string) {
	segs := segments(path)
	if len(segs) == 0 {
		return routeRoot, ""
	}
	switch segs[0] {
	case "$audio":
		switch len(segs) {
		case 1:
			return routeAudioDir, ""
		case 2:
			return routeAudioFile, segs[1]
		default:
			return routeInvalid, ""
		}
	case "$system":
		switch len(segs) {
		case 1:
			return routeSystemDir, ""
		case 2:
			return routeSystemFile, segs[1]
		default:
			return routeInvalid, ""
		}
	default:
		return routeTFS, path
	}
}

func segments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHiddenTitle(title string) bool {
	return len(title) == 7 && strings.HasPrefix(title, "h_fs_")
}

// audioName renders the display name used under /$audio for a track.
func audioName(index int, title string, enc device.Encoding) string {
	display := title
	if display == "" {
		display = "No Title"
	}
	display = strings.ReplaceAll(display, "/", "_")
	ext := "wav"
	if enc == device.EncodingSP {
		ext = "aea"
	}
	return fmt.Sprintf("%d. %s.%s", index+1, display, ext)
}
