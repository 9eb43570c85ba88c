package vfs

import "github.com/netmdfs/netmdfs/internal/device"

// audioNames returns the /$audio listing in disc track order, excluding
// hidden h_fs_XX tracks.
func (fs *FS) audioNames() []string {
	tracks := fs.cache.Tracks()
	names := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if isHiddenTitle(t.Title) {
			continue
		}
		names = append(names, audioName(t.Index, t.Title, t.Encoding))
	}
	return names
}

// lookupAudio resolves a /$audio display name back to its track index and
// encoding.
func (fs *FS) lookupAudio(name string) (index int, enc device.Encoding, ok bool) {
	for _, t := range fs.cache.Tracks() {
		if isHiddenTitle(t.Title) {
			continue
		}
		if audioName(t.Index, t.Title, t.Encoding) == name {
			return t.Index, t.Encoding, true
		}
	}
	return 0, 0, false
}
