package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/voicebot/internal/config"
	"github.com/snarg/voicebot/internal/metrics"
)

// Source is everything the ops API reads from the pipeline.
type Source interface {
	HealthSource
	StatsSource
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer builds the ops HTTP server. redis may be nil.
func NewServer(cfg *config.Config, src Source, redis Pinger, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg.AuthToken, src, redis, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter wires middleware and routes.
func NewRouter(authToken string, src Source, redis Pinger, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(RateLimiter(20, 40))

	// No auth: probes and scrapers.
	r.Get("/api/v1/health", NewHealthHandler(src, redis, version, startTime).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authToken))
		r.Get("/api/v1/metrics", NewStatsHandler(src).ServeHTTP)
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
