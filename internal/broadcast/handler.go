// Package broadcast implements the one handler this system ships: on
// session ready it opens a server-initiated unidirectional stream and
// subscribes it to the fanout hub; on session close it unsubscribes.
package broadcast

import (
	"log/slog"

	"github.com/TaoEngine/outdoor-aerial-server/internal/fanout"
	"github.com/TaoEngine/outdoor-aerial-server/internal/wt"
)

// Hub is the subset of *fanout.Hub the handler depends on.
type Hub interface {
	Subscribe(id uint64, push fanout.PushFunc)
	Unsubscribe(id uint64)
}

// Handler subscribes each new session's outbound stream to the hub and
// unsubscribes it on session close. It never reads inbound data.
type Handler struct {
	wt.BaseHandler
	hub        Hub
	streamID   uint64
	subscribed bool
}

// NewFactory returns a wt.Factory that builds a Handler bound to hub,
// ignoring any route params (the broadcast route takes none).
func NewFactory(hub Hub) wt.Factory {
	return func(params map[string]any) wt.Handler {
		return &Handler{hub: hub}
	}
}

// OnSessionReady opens one unidirectional stream and registers it with the
// hub under its own stream id.
func (h *Handler) OnSessionReady(s *wt.Session) {
	stream, err := s.CreateStream(false)
	if err != nil {
		slog.Warn("broadcast: failed to open outbound stream", "component", "broadcast", "session_id", s.ID(), "err", err)
		s.CloseSession(1, "handler error")
		return
	}

	h.streamID = uint64(stream.ID())
	h.subscribed = true
	h.hub.Subscribe(h.streamID, func(block fanout.Block) error {
		return stream.Write(block, false)
	})

	slog.Debug("broadcast: subscriber attached", "component", "broadcast", "session_id", s.ID(), "stream_id", h.streamID)
}

// OnSessionClosed unsubscribes the stream created for this session, if one
// was ever created.
func (h *Handler) OnSessionClosed(s *wt.Session, code uint32, reason string) {
	if h.subscribed {
		h.hub.Unsubscribe(h.streamID)
	}
	slog.Debug("broadcast: session closed", "component", "broadcast", "session_id", s.ID(), "code", code, "reason", reason)
}
