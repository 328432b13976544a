package wt

import "errors"

// These are misuse errors returned to the caller. They are never fatal to
// the underlying QUIC connection.
var (
	ErrStreamClosed  = errors.New("wt: stream is closed")
	ErrNotReadable   = errors.New("wt: stream has no read capability")
	ErrSessionClosed = errors.New("wt: session is closed")
)
