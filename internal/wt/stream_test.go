package wt

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type recordingWriteCloser struct {
	buf    bytes.Buffer
	closed bool
}

func (r *recordingWriteCloser) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *recordingWriteCloser) Close() error                { r.closed = true; return nil }

func TestStreamWriteAppendsToWriter(t *testing.T) {
	w := &recordingWriteCloser{}
	s := newStream(1, true, true, true, w, w)

	if err := s.Write([]byte("hello "), false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write([]byte("world"), false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := w.buf.String(); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
	if w.closed {
		t.Error("stream should not be closed without end=true")
	}
}

func TestStreamWriteWithEndClosesStream(t *testing.T) {
	w := &recordingWriteCloser{}
	s := newStream(1, true, true, true, w, w)

	if err := s.Write([]byte("bye"), true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !w.closed {
		t.Error("expected underlying closer to be closed")
	}
	if err := s.Write([]byte("more"), false); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed after end, got %v", err)
	}
}

func TestStreamReadReturnsFedData(t *testing.T) {
	s := newStream(2, false, true, false, nil, nil)

	s.FeedData([]byte("chunk1"), false)
	s.FeedData([]byte("chunk2"), false)

	data, end, err := s.Read()
	if err != nil || end || string(data) != "chunk1" {
		t.Fatalf("unexpected first read: data=%q end=%v err=%v", data, end, err)
	}
	data, end, err = s.Read()
	if err != nil || end || string(data) != "chunk2" {
		t.Fatalf("unexpected second read: data=%q end=%v err=%v", data, end, err)
	}
}

func TestStreamReadOnNotReadableFails(t *testing.T) {
	s := newStream(3, false, false, true, &recordingWriteCloser{}, nil)
	_, _, err := s.Read()
	if !errors.Is(err, ErrNotReadable) {
		t.Errorf("expected ErrNotReadable, got %v", err)
	}
}

func TestStreamReadUnblocksOnClose(t *testing.T) {
	s := newStream(4, false, true, false, nil, nil)

	done := make(chan struct{})
	var data []byte
	var end bool
	var err error
	go func() {
		data, end, err = s.Read()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}

	if err != nil || !end || len(data) != 0 {
		t.Errorf("expected empty end-flagged read, got data=%q end=%v err=%v", data, end, err)
	}
}

func TestStreamReadDrainsQueueBeforeSignalingClose(t *testing.T) {
	s := newStream(5, false, true, false, nil, nil)
	s.FeedData([]byte("last"), false)
	s.Close()

	data, end, err := s.Read()
	if err != nil || end || string(data) != "last" {
		t.Fatalf("expected queued data before close signal, got data=%q end=%v err=%v", data, end, err)
	}

	data, end, err = s.Read()
	if err != nil || !end || len(data) != 0 {
		t.Fatalf("expected empty end-flagged read after drain, got data=%q end=%v err=%v", data, end, err)
	}
}

func TestStreamFeedDataDropsWhenFullAndClosesOnEnd(t *testing.T) {
	s := newStream(6, false, true, false, nil, nil)
	for i := 0; i < defaultInboundCapacity; i++ {
		s.FeedData([]byte{byte(i)}, false)
	}
	// Queue is now full; this record is dropped, but end=true still closes.
	s.FeedData([]byte("overflow"), true)

	if !s.isClosed() {
		t.Error("expected stream to be closed after a dropped end-flagged record")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	w := &recordingWriteCloser{}
	s := newStream(7, true, true, true, w, w)

	s.Close()
	s.Close()

	if !w.closed {
		t.Error("expected closer to have been closed")
	}
}
