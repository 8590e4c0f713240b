// Package admin serves the operator UI and JSON API of the gateway on a
// separate listener.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkingovr/routegate/internal/access"
	"github.com/tkingovr/routegate/internal/metrics"
	"github.com/tkingovr/routegate/internal/route"
)

// TableSource returns the route table currently in effect.
type TableSource interface {
	Table() *route.Table
}

// Server is the admin HTTP server.
type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	store   access.Store
	routes  TableSource
	metrics *metrics.Metrics
	addr    string
}

// NewServer creates a new admin server. m may be nil, in which case
// /metrics is not served.
func NewServer(addr string, store access.Store, routes TableSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		store:   store,
		routes:  routes,
		metrics: m,
		addr:    addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /", s.handleOverview)
	s.mux.HandleFunc("GET /routes", s.handleRoutes)
	s.mux.HandleFunc("GET /access", s.handleAccess)
	s.mux.HandleFunc("GET /access/stream", s.handleAccessStream)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleAPIStats)
	s.mux.HandleFunc("GET /api/v1/routes", s.handleAPIRoutes)
	s.mux.HandleFunc("GET /api/v1/access", s.handleAPIAccess)
	s.mux.HandleFunc("POST /api/v1/match", s.handleAPIMatch)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if reg := s.metrics.Registry(); reg != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
}

// ListenAndServe starts the admin server and stops it when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("starting admin server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler for embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}
