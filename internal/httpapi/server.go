// Package httpapi serves the reactor's admin and sync HTTP surface.
package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/reactor/internal/reactor"
)

// Options tune the server.
type Options struct {
	// Token, if set, is required as a bearer token on the sync endpoints.
	Token string
	// WaitTimeout bounds GET /jobs/{id}?wait=true.
	WaitTimeout time.Duration
}

type server struct {
	reactor  *reactor.Reactor
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler returns the router for r.
func NewHandler(r *reactor.Reactor, opts Options) http.Handler {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	s := &server{
		reactor: r,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)

	router.Get("/healthz", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(api chi.Router) {
		api.Use(instrument)
		api.Post("/documents", s.createDocument)
		api.Get("/documents/{id}", s.getDocument)
		api.Delete("/documents/{id}", s.deleteDocument)
		api.Post("/documents/{id}/actions", s.executeActions)
		api.Get("/documents/{id}/operations", s.listOperations)
		api.Get("/jobs/{id}", s.getJob)
		api.Get("/remotes", s.listRemotes)
	})

	router.Group(func(sync chi.Router) {
		sync.Use(instrument)
		sync.Use(s.authorize)
		sync.Get("/collections/{collection}/operations", s.exportOperations)
		sync.Post("/collections/{collection}/envelopes", s.ingestEnvelope)
		sync.Get("/sync/{remote}", s.acceptSync)
	})
	return router
}

// authorize checks the bearer token when one is configured.
func (s *server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
