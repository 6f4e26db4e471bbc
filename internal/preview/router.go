package preview

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configure NewRouter. Nil handlers are not mounted.
type RouterOptions struct {
	Site    Site
	Reload  http.Handler
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter mounts health checks, the live-reload socket, metrics and the
// build output catch-all.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	if opts.Reload != nil {
		r.Get(SocketPath, opts.Reload.ServeHTTP)
	}
	if opts.Metrics != nil {
		r.Get("/metrics", opts.Metrics.ServeHTTP)
	}

	h := NewHandler(opts.Site, opts.Logger)
	r.Get("/*", h.ServeHTTP)
	r.Head("/*", h.ServeHTTP)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
