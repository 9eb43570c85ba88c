package streambuf

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContentsWaitsForThreshold(t *testing.T) {
	var starts int32
	buf := New(func() { atomic.AddInt32(&starts, 1) })

	done := make(chan []byte, 1)
	go func() {
		data, err := buf.GetContents(context.Background(), 0, 8)
		require.NoError(t, err)
		done <- data
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("GetContents returned before enough data was appended")
	default:
	}

	buf.Append([]byte{1, 2, 3})
	buf.Append([]byte{4, 5, 6, 7, 8})

	select {
	case data := <-done:
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
	case <-time.After(time.Second):
		t.Fatal("GetContents never returned")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&starts))
}

func TestGetContentsEOFOnComplete(t *testing.T) {
	buf := New(func() {})
	buf.Append([]byte{1, 2, 3})
	buf.MarkComplete()

	data, err := buf.GetContents(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestSingleTransferForConcurrentReaders(t *testing.T) {
	var starts int32
	var buf *Buffer
	buf = New(func() {
		atomic.AddInt32(&starts, 1)
		go func() {
			buf.Append(make([]byte, 2048))
			buf.MarkComplete()
		}()
	})

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := buf.GetContents(context.Background(), 0, 1024)
			require.NoError(t, err)
			results[i] = data
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&starts))
	assert.Len(t, results[0], 1024)
	assert.Equal(t, results[0], results[1])
}

func TestGetContentsContextCancel(t *testing.T) {
	buf := New(func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := buf.GetContents(ctx, 0, 10)
	require.Error(t, err)
}
