package wt

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the session lifecycle state. A Session is Pending from
// NewSession until Run starts: the underlying library has already
// completed the CONNECT handshake by then, so Run moves it straight to
// Accepted.
type State int32

const (
	StatePending State = iota
	StateAccepted
	StateClosed
)

type eventKind int

const (
	eventStreamAccepted eventKind = iota
	eventUniStreamAccepted
	eventDatagramReceived
	eventConnectionTerminated
	eventPeerClosed
)

type sessionEvent struct {
	kind      eventKind
	stream    BidiStream
	uniStream ReceiveStream
	datagram  []byte
	err       error
}

// Session is the lifecycle owner for one WebTransport CONNECT. It owns its
// child streams; they are mutated only from the goroutine running Run,
// mirroring the single-event-loop model the wire protocol assumes.
type Session struct {
	id      int64
	conn    Conn
	handler Handler

	state atomic.Int32

	streams map[int64]*Stream // touched only inside Run's goroutine

	events chan sessionEvent

	closeOnce   sync.Once
	closeCode   uint32
	closeReason string
	closedCh    chan struct{}
}

// NewSession constructs a Session for an already-upgraded connection. id is
// the caller-assigned session identifier returned by ID. The transport
// adapter numbers sessions from a per-process counter; the id is not the
// CONNECT stream id.
func NewSession(id int64, conn Conn, handler Handler) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		handler:  handler,
		streams:  make(map[int64]*Stream),
		events:   make(chan sessionEvent, 8),
		closedCh: make(chan struct{}),
	}
}

// ID returns the session id passed to NewSession.
func (s *Session) ID() int64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Run drives the session to completion: it marks the session Accepted
// (the underlying library has already sent :status 200 by the time a
// Session exists), invokes OnSessionReady, then processes events until the
// session closes, finalizing exactly once.
func (s *Session) Run() {
	s.state.Store(int32(StateAccepted))

	go s.acceptStreamLoop()
	go s.acceptUniStreamLoop()
	go s.datagramLoop()
	go s.watchConnection()
	go s.watchPeerClose()

	s.safeCall(func() { s.handler.OnSessionReady(s) })

	for {
		select {
		case ev := <-s.events:
			if s.processEvent(ev) {
				s.finalize()
				return
			}
		case <-s.closedCh:
			s.finalize()
			return
		}
	}
}

func (s *Session) acceptStreamLoop() {
	ctx := s.conn.Context()
	for {
		st, err := s.conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		select {
		case s.events <- sessionEvent{kind: eventStreamAccepted, stream: st}:
		case <-s.closedCh:
			return
		}
	}
}

func (s *Session) acceptUniStreamLoop() {
	ctx := s.conn.Context()
	for {
		st, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		select {
		case s.events <- sessionEvent{kind: eventUniStreamAccepted, uniStream: st}:
		case <-s.closedCh:
			return
		}
	}
}

func (s *Session) datagramLoop() {
	ctx := s.conn.Context()
	for {
		data, err := s.conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		select {
		case s.events <- sessionEvent{kind: eventDatagramReceived, datagram: data}:
		case <-s.closedCh:
			return
		}
	}
}

func (s *Session) watchConnection() {
	<-s.conn.Context().Done()
	select {
	case s.events <- sessionEvent{kind: eventConnectionTerminated, err: s.conn.Context().Err()}:
	case <-s.closedCh:
	}
}

// watchPeerClose detects the peer ending the WebTransport session by
// closing its CONNECT request stream — a distinct condition from general
// connection termination (network loss, idle timeout). If the underlying
// connection ends for any other reason first, WaitPeerClosed reports that
// via a non-nil error and this goroutine simply exits, leaving
// watchConnection to report the generic termination.
func (s *Session) watchPeerClose() {
	if err := s.conn.WaitPeerClosed(s.conn.Context()); err != nil {
		return
	}
	select {
	case s.events <- sessionEvent{kind: eventPeerClosed}:
	case <-s.closedCh:
	}
}

// processEvent handles one event and reports whether the session is now
// closed (in which case Run should finalize and return).
func (s *Session) processEvent(ev sessionEvent) bool {
	switch ev.kind {
	case eventStreamAccepted:
		id := ev.stream.ID()
		stream := newStream(id, true, true, true, ev.stream, ev.stream)
		s.streams[id] = stream
		s.safeCall(func() { s.handler.OnStreamBidirectional(s, stream) })
		go s.pump(stream, ev.stream)

	case eventUniStreamAccepted:
		id := ev.uniStream.ID()
		stream := newStream(id, false, true, false, nil, nil)
		s.streams[id] = stream
		s.safeCall(func() { s.handler.OnStreamUnidirectional(s, stream) })
		go s.pump(stream, ev.uniStream)

	case eventDatagramReceived:
		go s.safeCall(func() { s.handler.OnDatagram(s, ev.datagram) })

	case eventConnectionTerminated:
		s.markClosed(0, connectionTerminatedReason(ev.err))
		return true

	case eventPeerClosed:
		s.markClosed(0, "client closed")
		return true
	}
	return s.State() == StateClosed
}

func connectionTerminatedReason(err error) string {
	if err == nil {
		return "connection terminated"
	}
	return "connection terminated: " + err.Error()
}

// pump reads chunks off a peer-initiated stream and feeds them to the
// wrapper. It is the pull-based equivalent of the push-style
// WebTransportStreamDataReceived event the wire model assumes.
func (s *Session) pump(stream *Stream, r io.Reader) {
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			stream.FeedData(chunk, err != nil)
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("stream read error", "component", "wt", "stream_id", stream.ID(), "err", err)
			}
			if n == 0 {
				stream.FeedData(nil, true)
			}
			return
		}
	}
}

// CreateStream allocates a new WT stream via the underlying connection.
// It fails with ErrSessionClosed after close.
func (s *Session) CreateStream(bidirectional bool) (*Stream, error) {
	if s.State() == StateClosed {
		return nil, ErrSessionClosed
	}

	if bidirectional {
		raw, err := s.conn.OpenStream()
		if err != nil {
			return nil, err
		}
		id := raw.ID()
		stream := newStream(id, true, true, true, raw, raw)
		s.streams[id] = stream
		go s.pump(stream, raw)
		return stream, nil
	}

	raw, err := s.conn.OpenUniStream()
	if err != nil {
		return nil, err
	}
	id := raw.ID()
	stream := newStream(id, false, false, true, raw, raw)
	s.streams[id] = stream
	return stream, nil
}

// SendDatagram enqueues data for the session. It is silently discarded
// after close.
func (s *Session) SendDatagram(data []byte) error {
	if s.State() == StateClosed {
		return nil
	}
	return s.conn.SendDatagram(data)
}

// CloseSession marks the session closed and ends the CONNECT stream, if it
// has not already ended.
func (s *Session) CloseSession(code uint32, reason string) {
	s.markClosed(code, reason)
}

func (s *Session) markClosed(code uint32, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		s.state.Store(int32(StateClosed))
		_ = s.conn.CloseWithError(code, reason)
		close(s.closedCh)
	})
}

// finalize closes every child stream, then invokes OnSessionClosed exactly
// once. Errors from the hook are logged, never propagated.
func (s *Session) finalize() {
	for _, stream := range s.streams {
		stream.Close()
	}
	s.safeCall(func() { s.handler.OnSessionClosed(s, s.closeCode, s.closeReason) })
}

func (s *Session) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session handler hook panicked", "component", "wt", "session_id", s.id, "panic", r)
		}
	}()
	fn()
}
