// SPDX-License-Identifier: MIT

// Package api is the HTTP boundary: job submission, upload ingest, status,
// results and health.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/framely/eyes/internal/config"
	"github.com/framely/eyes/internal/gpu"
	"github.com/framely/eyes/internal/jobs"
	"github.com/framely/eyes/internal/store"
	"github.com/framely/eyes/internal/vlclient"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Config   config.Config
	Manager  *jobs.Manager
	Disk     *store.Store
	Pool     *gpu.Pool
	Reasoner vlclient.Reasoner // nil when no VL endpoint is configured
	Logger   zerolog.Logger
}

// Server carries the router and its dependencies.
type Server struct {
	deps Deps
	mux  *chi.Mux
}

// New builds the HTTP server with the full middleware stack.
func New(deps Deps) *Server {
	s := &Server{deps: deps, mux: chi.NewRouter()}

	s.mux.Use(chimw.RequestID)
	s.mux.Use(chimw.RealIP)
	s.mux.Use(hlog.NewHandler(deps.Logger))
	s.mux.Use(accessLogger)
	s.mux.Use(chimw.Recoverer)
	if rps := deps.Config.Server.RateLimitRPS; rps > 0 {
		s.mux.Use(httprate.LimitByIP(rps, time.Second))
	}

	s.mux.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/ingest", s.handleIngest)
		r.Get("/status/{videoID}", s.handleStatus)
		r.Get("/result/{videoID}", s.handleResult)
		r.Get("/health", s.handleHealth)
	})
	s.mux.Get("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// accessLogger emits one structured line per request.
func accessLogger(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", size).
			Dur("duration", duration).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})(next)
}
