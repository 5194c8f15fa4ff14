// Package kernel builds the HTTP handler: the global middleware stack, the
// operational endpoints and whatever routes the caller registers.
package kernel

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
	"github.com/shashiranjanraj/kashvi-shop/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-shop/pkg/reqid"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
	"github.com/shashiranjanraj/kashvi-shop/pkg/router"
)

const (
	rateLimitMax    = 200
	rateLimitWindow = time.Minute
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func() error

type HTTPKernel struct {
	router *router.Router
}

// NewHTTPKernel mounts the middleware stack and /metrics and /health, then
// calls each register func in order.
func NewHTTPKernel(health HealthCheck, register ...func(*router.Router)) *HTTPKernel {
	r := router.New()

	// Outermost first: metrics see the full latency, recovery guards
	// everything after it, and the request id exists before anything logs.
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions(config.CORSAllowedOrigins()...)))
	r.Use(middleware.RateLimit(rateLimitMax, rateLimitWindow))

	r.Get("/metrics", "metrics", metrics.Handler())
	r.Get("/health", "health", healthHandler(health))

	for _, fn := range register {
		fn(r)
	}
	return &HTTPKernel{router: r}
}

func (k *HTTPKernel) Handler() http.Handler { return k.router.Handler() }

func (k *HTTPKernel) Router() *router.Router { return k.router }

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				w.Header().Set("Retry-After", "5")
				response.Fail(w, http.StatusServiceUnavailable, "unhealthy", "database unavailable")
				return
			}
		}
		response.Success(w, map[string]string{"status": "ok"})
	}
}
