// Package server is the thin routing layer. It only forwards query
// parameters into the resolution engine and streams the results back.
package server

import (
	"net/http"
	"time"

	"github.com/Lachee/reddit-download/pkg/proxy"
	"github.com/Lachee/reddit-download/pkg/reddit"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server holds the engine pieces the handlers delegate to
type Server struct {
	Resolver *reddit.Resolver
	Proxy    *proxy.Proxy
}

// Routes builds the router
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/proxy", s.handleProxy)
		r.Route("/reddit", func(r chi.Router) {
			r.Get("/follow", s.handleFollow)
			r.Get("/media", s.handleMedia)
			r.Get("/download", s.handleDownload)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger tags every request with a correlation id and logs its
// outcome
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.S().Infow("request",
			"id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
