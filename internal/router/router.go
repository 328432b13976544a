// Package router implements the exact-match path-to-handler-factory table
// used to dispatch incoming WebTransport CONNECT requests.
package router

import (
	"sync"

	"github.com/TaoEngine/outdoor-aerial-server/internal/wt"
)

// Route bundles a handler factory with the fixed parameter bag it is
// always invoked with.
type Route struct {
	Factory wt.Factory
	Params  map[string]any
}

// Router is an exact-match path table. There is no wildcard matching and
// no middleware.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// New constructs an empty Router.
func New() *Router {
	return &Router{routes: make(map[string]Route)}
}

// Add registers factory under path with the given fixed params. Registering
// the same path twice overwrites the previous entry.
func (r *Router) Add(path string, factory wt.Factory, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = Route{Factory: factory, Params: params}
}

// Lookup returns the route registered for path, if any.
func (r *Router) Lookup(path string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[path]
	return route, ok
}
