package transport

import (
	"context"
	"io"

	"github.com/quic-go/webtransport-go"

	"github.com/TaoEngine/outdoor-aerial-server/internal/wt"
)

// sessionConn adapts a *webtransport.Session to wt.Conn. The session layer
// is written against the small interfaces in package wt rather than the
// library's own stream types, so it can be driven by hand-built fakes in
// tests without reproducing the library's full method sets.
//
// requestBody is the CONNECT request's body, i.e. the HTTP/3 request
// stream that carries the WebTransport session. Reading it to EOF is how a
// peer-initiated session close is distinguished from a dead connection.
type sessionConn struct {
	sess        *webtransport.Session
	requestBody io.Reader
}

func newSessionConn(sess *webtransport.Session, requestBody io.Reader) wt.Conn {
	return sessionConn{sess: sess, requestBody: requestBody}
}

func (c sessionConn) AcceptStream(ctx context.Context) (wt.BidiStream, error) {
	st, err := c.sess.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return bidiStream{st}, nil
}

func (c sessionConn) AcceptUniStream(ctx context.Context) (wt.ReceiveStream, error) {
	st, err := c.sess.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return receiveStream{st}, nil
}

func (c sessionConn) OpenStream() (wt.BidiStream, error) {
	st, err := c.sess.OpenStream()
	if err != nil {
		return nil, err
	}
	return bidiStream{st}, nil
}

func (c sessionConn) OpenUniStream() (wt.SendStream, error) {
	st, err := c.sess.OpenUniStream()
	if err != nil {
		return nil, err
	}
	return sendStream{st}, nil
}

func (c sessionConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.sess.ReceiveDatagram(ctx)
}

func (c sessionConn) SendDatagram(data []byte) error {
	return c.sess.SendDatagram(data)
}

func (c sessionConn) CloseWithError(code uint32, reason string) error {
	return c.sess.CloseWithError(webtransport.SessionErrorCode(code), reason)
}

func (c sessionConn) Context() context.Context {
	return c.sess.Context()
}

// WaitPeerClosed reads the CONNECT request stream to EOF. The stream ends
// cleanly when the peer closes the WebTransport session itself, distinct
// from the connection dying outright — the same signal galargh's older
// webtransport-go fork keys its own session-closed detection on (see
// DESIGN.md). ctx is accepted for parity with the rest of wt.Conn; the
// underlying Read is not itself interruptible by ctx, but it unblocks with
// a non-EOF error once the connection that ctx tracks goes away, so a
// cancelled ctx is still observed, just via the read failing rather than a
// select on ctx.Done().
func (c sessionConn) WaitPeerClosed(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		_, err := c.requestBody.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// bidiStream adapts webtransport.Stream.
type bidiStream struct {
	webtransport.Stream
}

func (b bidiStream) ID() int64 { return int64(b.Stream.StreamID()) }

// sendStream adapts webtransport.SendStream.
type sendStream struct {
	webtransport.SendStream
}

func (s sendStream) ID() int64 { return int64(s.SendStream.StreamID()) }

// receiveStream adapts webtransport.ReceiveStream.
type receiveStream struct {
	webtransport.ReceiveStream
}

func (r receiveStream) ID() int64 { return int64(r.ReceiveStream.StreamID()) }
