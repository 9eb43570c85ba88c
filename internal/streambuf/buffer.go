// Package streambuf implements the streaming file buffer (spec §4.3): a
// byte buffer fed by an asynchronous device recovery transfer, decoupling
// that slow transfer from the filesystem read calls blocked on its output.
package streambuf

import (
	"context"
	"sync"
)

type waiter struct {
	threshold int
	release   chan struct{}
}

// Buffer holds the partial contents of a track being recovered from the
// device. The zero value is not usable; construct with New.
type Buffer struct {
	mu       sync.Mutex
	contents []byte
	started  bool
	complete bool
	waiters  []*waiter

	// Starter begins the device read transfer that will feed Append/
	// MarkComplete. It runs at most once per Buffer regardless of how many
	// goroutines call GetContents concurrently (the started flag is the
	// latch, spec §4.3 "single transfer ... regardless of how many readers").
	Starter func()
}

// New returns an empty, not-yet-started buffer whose recovery transfer is
// begun by starter on the first GetContents call.
func New(starter func()) *Buffer {
	return &Buffer{Starter: starter}
}

// Append concatenates data to the buffer's contents and releases any
// waiter whose threshold has now been met.
func (b *Buffer) Append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contents = append(b.contents, data...)
	b.releaseMet()
}

// MarkComplete marks the buffer as fully recovered and releases every
// remaining waiter, however short the final contents turned out to be.
func (b *Buffer) MarkComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.complete = true
	for _, w := range b.waiters {
		close(w.release)
	}
	b.waiters = nil
}

// releaseMet removes and releases every waiter whose threshold is now
// satisfied. Must be called with mu held.
func (b *Buffer) releaseMet() {
	kept := b.waiters[:0]
	for _, w := range b.waiters {
		if len(b.contents) >= w.threshold {
			close(w.release)
		} else {
			kept = append(kept, w)
		}
	}
	b.waiters = kept
}

// GetContents returns up to length bytes at offset start. If the buffer's
// transfer has not yet been started, it is started here (the "not
// initialized" check doubling as the start latch). If fewer than
// start+length bytes are available and the buffer isn't complete, the
// caller blocks until either condition changes. The returned slice may be
// shorter than length at EOF.
func (b *Buffer) GetContents(ctx context.Context, start, length int) ([]byte, error) {
	b.mu.Lock()
	if !b.started {
		b.started = true
		starter := b.Starter
		b.mu.Unlock()
		if starter != nil {
			starter()
		}
		b.mu.Lock()
	}
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if start+length <= len(b.contents) || b.complete {
			out := slice(b.contents, start, length)
			b.mu.Unlock()
			return out, nil
		}
		w := &waiter{threshold: start + length, release: make(chan struct{})}
		b.waiters = append(b.waiters, w)
		b.mu.Unlock()

		select {
		case <-w.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func slice(contents []byte, start, length int) []byte {
	if start >= len(contents) {
		return nil
	}
	end := start + length
	if end > len(contents) {
		end = len(contents)
	}
	out := make([]byte, end-start)
	copy(out, contents[start:end])
	return out
}
