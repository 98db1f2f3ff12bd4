// Package server exposes the market service as a read-only JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contactkeval/iv-terminal/internal/logger"
	"github.com/contactkeval/iv-terminal/internal/market"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// Server is the HTTP front of a market.Service.
type Server struct {
	router  *mux.Router
	server  *http.Server
	service *market.Service
	metrics *metrics
	config  Config
	now     func() time.Time
}

func NewServer(service *market.Service, config Config) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		service: service,
		metrics: newMetrics(),
		config:  config,
		now:     time.Now,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.metricsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.timeoutMiddleware)

	api.HandleFunc("/health", s.health).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/quote/{ticker}", s.quote).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/options/{ticker}", s.options).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/iv-surface/{ticker}", s.ivSurface).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/term-structure/{ticker}", s.termStructure).Methods(http.MethodGet, http.MethodOptions)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	logger.Infof("starting HTTP server on %s (provider %s)", s.config.Addr, s.service.ProviderName())
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Infof("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
