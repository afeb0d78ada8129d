package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router is the routing surface route registration depends on. Only the
// server and the route tests know it is chi underneath.
type Router interface {
	GET(path string, h http.HandlerFunc)
	POST(path string, h http.HandlerFunc)

	// Handle mounts h for every method, e.g. promhttp or the websocket
	// upgrader.
	Handle(path string, h http.Handler)

	// Group mounts fn's routes under prefix behind mws.
	Group(prefix string, fn func(Router), mws ...Middleware)

	// Use adds middleware to every route. It must be called before any
	// route is registered on the same router.
	Use(mws ...Middleware)

	Handler() http.Handler

	// Walk visits every registered route.
	Walk(fn func(method, path string) error) error
}

type chiRouter struct {
	mux chi.Router
}

// NewChiRouter returns a chi-backed Router that trusts X-Real-IP and
// X-Forwarded-For and normalises slashes before routing.
func NewChiRouter() Router {
	mux := chi.NewRouter()
	mux.Use(chimw.RealIP, chimw.CleanPath, chimw.StripSlashes)
	return &chiRouter{mux: mux}
}

func (r *chiRouter) GET(path string, h http.HandlerFunc)  { r.mux.Get(path, h) }
func (r *chiRouter) POST(path string, h http.HandlerFunc) { r.mux.Post(path, h) }
func (r *chiRouter) Handle(path string, h http.Handler)   { r.mux.Handle(path, h) }
func (r *chiRouter) Handler() http.Handler                { return r.mux }

func (r *chiRouter) Group(prefix string, fn func(Router), mws ...Middleware) {
	r.mux.Route(prefix, func(sub chi.Router) {
		for _, mw := range mws {
			sub.Use(mw)
		}
		fn(&chiRouter{mux: sub})
	})
}

func (r *chiRouter) Use(mws ...Middleware) {
	for _, mw := range mws {
		r.mux.Use(mw)
	}
}

func (r *chiRouter) Walk(fn func(method, path string) error) error {
	return chi.Walk(r.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/*" {
			return nil
		}
		return fn(method, route)
	})
}
