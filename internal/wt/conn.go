package wt

import (
	"context"
	"io"
)

// SendStream is the write half of a stream this package drives. A uni
// stream opened locally satisfies only this interface.
type SendStream interface {
	io.Writer
	io.Closer
	ID() int64
}

// ReceiveStream is the read half of a stream this package drives. A uni
// stream accepted from the peer satisfies only this interface.
type ReceiveStream interface {
	io.Reader
	ID() int64
}

// BidiStream is a stream with both read and write capability.
type BidiStream interface {
	SendStream
	ReceiveStream
}

// Conn is the subset of a live WebTransport session the session layer
// depends on. Production code drives it via a thin adapter over
// *webtransport.Session (see the transport package); tests drive it with
// an in-memory fake.
type Conn interface {
	AcceptStream(ctx context.Context) (BidiStream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	OpenStream() (BidiStream, error)
	OpenUniStream() (SendStream, error)
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	SendDatagram([]byte) error
	CloseWithError(code uint32, reason string) error
	Context() context.Context

	// WaitPeerClosed blocks until the peer ends the WebTransport session by
	// closing its CONNECT request stream, returning nil when that happens.
	// It returns a non-nil error if the connection ends for any other
	// reason first (ctx cancelled, network failure, idle timeout), which
	// the caller must treat as ordinary connection termination rather than
	// a peer-initiated close.
	WaitPeerClosed(ctx context.Context) error
}
