package wt

import (
	"io"
	"sync"
)

const defaultInboundCapacity = 16

type inboundRecord struct {
	data []byte
	end  bool
}

// Stream is a per-session send/recv abstraction with a bounded inbound
// queue. Direction flags are fixed at construction and never change.
type Stream struct {
	id            int64
	bidirectional bool
	readable      bool
	writable      bool

	writer io.Writer
	closer io.Closer

	inbound chan inboundRecord

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func newStream(id int64, bidirectional, readable, writable bool, writer io.Writer, closer io.Closer) *Stream {
	return &Stream{
		id:            id,
		bidirectional: bidirectional,
		readable:      readable,
		writable:      writable,
		writer:        writer,
		closer:        closer,
		inbound:       make(chan inboundRecord, defaultInboundCapacity),
		closedCh:      make(chan struct{}),
	}
}

// ID returns the underlying QUIC stream id.
func (s *Stream) ID() int64 { return s.id }

// Bidirectional reports whether this is a bidirectional stream.
func (s *Stream) Bidirectional() bool { return s.bidirectional }

// Readable reports whether Read may be called on this stream.
func (s *Stream) Readable() bool { return s.readable }

// Writable reports whether Write may be called on this stream.
func (s *Stream) Writable() bool { return s.writable }

// Write submits bytes to the underlying QUIC send side. Writing after
// close fails with ErrStreamClosed.
func (s *Stream) Write(data []byte, end bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	_, err := s.writer.Write(data)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if end {
		s.closed = true
		s.mu.Unlock()
		s.Close()
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Read awaits the next (bytes, end) pair from the inbound queue. It returns
// empty bytes without error once the stream is closed and the queue has
// been drained.
func (s *Stream) Read() ([]byte, bool, error) {
	if !s.readable {
		return nil, false, ErrNotReadable
	}
	for {
		select {
		case rec := <-s.inbound:
			return rec.data, rec.end, nil
		default:
		}
		select {
		case rec := <-s.inbound:
			return rec.data, rec.end, nil
		case <-s.closedCh:
			select {
			case rec := <-s.inbound:
				return rec.data, rec.end, nil
			default:
				return nil, true, nil
			}
		}
	}
}

// FeedData is called by the session to deposit data received on the
// underlying stream. If the inbound queue is full the data is dropped; if
// the dropped record carried end=true the stream is still marked closed.
func (s *Stream) FeedData(data []byte, end bool) {
	select {
	case s.inbound <- inboundRecord{data: data, end: end}:
	default:
		if end {
			s.Close()
		}
	}
}

// Close is an idempotent local close. If the stream was open, a pending
// reader wakes and, once the queue is drained, receives empty bytes with
// end=true.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.closer != nil {
			_ = s.closer.Close()
		}
		close(s.closedCh)
	})
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
