// Package router wraps chi with named routes and prefix groups, and answers
// unknown paths and methods with the JSON error envelope.
package router

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

type Middleware func(http.Handler) http.Handler

// RouteInfo describes one mounted route, as listed by `kshop route:list`.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Router is the root group plus the name table.
type Router struct {
	mux  chi.Router
	root *Group

	mu    sync.RWMutex
	names map[string]string
	table []RouteInfo
}

// Group shares a path prefix and a middleware chain. Group-level
// middleware runs before route-level middleware.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

func New() *Router {
	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w)
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, r.Method+" is not allowed here")
	})

	r := &Router{mux: mux, names: make(map[string]string)}
	r.root = &Group{router: r, prefix: "/"}
	return r
}

func (r *Router) Handler() http.Handler { return r.mux }

// Use adds global middleware. It must be called before any route is mounted.
func (r *Router) Use(middlewares ...Middleware) {
	for _, mw := range middlewares {
		r.mux.Use(mw)
	}
}

func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return r.root.Group(prefix, middlewares...)
}

func (r *Router) Get(path, name string, h http.HandlerFunc, mws ...Middleware) {
	r.root.Get(path, name, h, mws...)
}

func (r *Router) Post(path, name string, h http.HandlerFunc, mws ...Middleware) {
	r.root.Post(path, name, h, mws...)
}

func (r *Router) Put(path, name string, h http.HandlerFunc, mws ...Middleware) {
	r.root.Put(path, name, h, mws...)
}

func (r *Router) Delete(path, name string, h http.HandlerFunc, mws ...Middleware) {
	r.root.Delete(path, name, h, mws...)
}

// Handle mounts h for every method, e.g. a websocket upgrade or a file server.
func (r *Router) Handle(path, name string, h http.Handler, mws ...Middleware) {
	r.root.Handle(path, name, h, mws...)
}

// Routes returns every mounted route in registration order.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RouteInfo(nil), r.table...)
}

func (r *Router) Path(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.names[name]
	return p, ok
}

// URL fills the {param} placeholders of a named route, escaping values.
func (r *Router) URL(name string, params map[string]string) (string, error) {
	p, ok := r.Path(name)
	if !ok {
		return "", fmt.Errorf("router: no route named %q", name)
	}
	for k, v := range params {
		p = strings.ReplaceAll(p, "{"+k+"}", url.PathEscape(v))
	}
	if strings.ContainsAny(p, "{}") {
		return "", fmt.Errorf("router: missing parameters for %q: %s", name, p)
	}
	return p, nil
}

func (r *Router) record(method, path, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = append(r.table, RouteInfo{Method: method, Path: path, Name: name})
	if name != "" {
		r.names[name] = path
	}
}

func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      g.router,
		prefix:      joinPath(g.prefix, prefix),
		middlewares: append(append([]Middleware(nil), g.middlewares...), middlewares...),
	}
}

func (g *Group) Get(path, name string, h http.HandlerFunc, mws ...Middleware) {
	g.Method(http.MethodGet, path, name, h, mws...)
}

func (g *Group) Post(path, name string, h http.HandlerFunc, mws ...Middleware) {
	g.Method(http.MethodPost, path, name, h, mws...)
}

func (g *Group) Put(path, name string, h http.HandlerFunc, mws ...Middleware) {
	g.Method(http.MethodPut, path, name, h, mws...)
}

func (g *Group) Delete(path, name string, h http.HandlerFunc, mws ...Middleware) {
	g.Method(http.MethodDelete, path, name, h, mws...)
}

func (g *Group) Method(method, path, name string, h http.Handler, mws ...Middleware) {
	full := joinPath(g.prefix, path)
	g.router.mux.Method(method, full, g.chain(h, mws))
	g.router.record(method, full, name)
}

func (g *Group) Handle(path, name string, h http.Handler, mws ...Middleware) {
	full := joinPath(g.prefix, path)
	g.router.mux.Handle(full, g.chain(h, mws))
	g.router.record("*", full, name)
}

// chain wraps h so the group middleware runs first, then mws, in order.
func (g *Group) chain(h http.Handler, mws []Middleware) http.Handler {
	all := append(append([]Middleware(nil), g.middlewares...), mws...)
	for i := len(all) - 1; i >= 0; i-- {
		h = all[i](h)
	}
	return h
}

// joinPath joins segments with single slashes; the result always starts
// with "/" and never ends with one, except for the root itself.
func joinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return "/" + strings.Join(segments, "/")
}
