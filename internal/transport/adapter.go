// Package transport is the HTTP/3 protocol adapter: it owns the QUIC
// listener, negotiates WebTransport CONNECT requests, consults the route
// table, and hands each accepted session off to the session layer.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"crypto/tls"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/TaoEngine/outdoor-aerial-server/internal/router"
	"github.com/TaoEngine/outdoor-aerial-server/internal/wt"
)

// Adapter holds the one HTTP/3 codec (by way of webtransport.Server) for
// the process. Incoming CONNECT requests are routed and promoted to a
// wt.Session; everything else is ignored, since the adapter is not a
// general HTTP server.
type Adapter struct {
	server *webtransport.Server
	router *router.Router

	nextSessionID atomic.Int64

	mu       sync.Mutex
	sessions map[int64]*wt.Session
}

// New builds an Adapter listening on addr. rtr must already have its
// routes registered before the first CONNECT arrives; routes may still be
// added afterward (Router is safe for concurrent use).
func New(addr string, tlsConf *tls.Config, idleTimeout time.Duration, rtr *router.Router) *Adapter {
	a := &Adapter{
		router:   rtr,
		sessions: make(map[int64]*wt.Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleConnect)

	a.server = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConf,
			QUICConfig: &quic.Config{
				EnableDatagrams: true,
				MaxIdleTimeout:  idleTimeout,
			},
			Handler: mux,
		},
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return a
}

// handleConnect is invoked for every extended CONNECT request the HTTP/3
// codec routes to WebTransport. A route miss responds 404 with end-stream
// and creates no session; a route hit upgrades the connection (which
// itself emits :status 200), builds the handler, and launches the session.
// The CONNECT request's body (r.Body) is handed to the session as the
// signal for a peer-initiated close: the session layer reads it to EOF in
// the background to tell "client ended the session" apart from the
// connection dying outright.
func (a *Adapter) handleConnect(w http.ResponseWriter, r *http.Request) {
	route, ok := a.router.Lookup(r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		slog.Debug("route miss", "component", "transport", "path", r.URL.Path)
		return
	}

	sess, err := a.server.Upgrade(w, r)
	if err != nil {
		slog.Warn("webtransport upgrade failed", "component", "transport", "path", r.URL.Path, "err", err)
		return
	}

	id := a.nextSessionID.Add(1)
	handler := route.Factory(route.Params)
	session := wt.NewSession(id, newSessionConn(sess, r.Body), handler)

	a.mu.Lock()
	a.sessions[id] = session
	a.mu.Unlock()

	slog.Info("session accepted", "component", "transport", "session_id", id, "path", r.URL.Path)

	session.Run()

	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

// ActiveSessions returns the number of sessions currently running.
func (a *Adapter) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Run blocks serving QUIC/HTTP3 connections until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down webtransport server", "component", "transport")
		_ = a.server.Close()
		<-errCh
		return nil
	}
}
