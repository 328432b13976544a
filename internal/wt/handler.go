package wt

// Handler is the capability set a route factory produces for one session.
// Every hook is optional; embed BaseHandler to get no-op defaults and
// override only what the handler actually uses.
type Handler interface {
	OnSessionReady(s *Session)
	OnSessionClosed(s *Session, code uint32, reason string)
	OnStreamUnidirectional(s *Session, stream *Stream)
	OnStreamBidirectional(s *Session, stream *Stream)
	OnDatagram(s *Session, data []byte)
}

// BaseHandler implements Handler with no-op methods. Concrete handlers
// embed it so they only need to define the hooks they care about.
type BaseHandler struct{}

func (BaseHandler) OnSessionReady(*Session)                         {}
func (BaseHandler) OnSessionClosed(*Session, uint32, string)        {}
func (BaseHandler) OnStreamUnidirectional(*Session, *Stream)        {}
func (BaseHandler) OnStreamBidirectional(*Session, *Stream)         {}
func (BaseHandler) OnDatagram(*Session, []byte)                     {}

// Factory builds a Handler for a newly accepted session. Routes register a
// Factory plus a fixed parameter bag (see package router).
type Factory func(params map[string]any) Handler
