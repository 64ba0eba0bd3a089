// Package server provides the HTTP API for Kessan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kessan/internal/config"
	"github.com/hyperjump/kessan/internal/export"
	"github.com/hyperjump/kessan/internal/indexer"
	"github.com/hyperjump/kessan/internal/models"
)

// Analyzer runs analyses and answers catalog questions.
type Analyzer interface {
	RunAnalysis(ctx context.Context, kind string, params models.Params) *models.Envelope
	Companies(ctx context.Context) ([]string, error)
	Quarters(ctx context.Context) ([]models.Period, error)
	Stats(ctx context.Context) (*models.Stats, error)
	SuggestQuestions(company string, period *models.Period) []string
}

// Ingester ingests files and directories into the index.
type Ingester interface {
	IngestPaths(ctx context.Context, paths []string, force bool) (*indexer.Report, error)
}

// Exporter writes envelopes to files.
type Exporter interface {
	Export(env *models.Envelope, format export.Format) (string, error)
}

// WatchService manages watched inbox directories. It may be nil when watching is disabled.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Kessan API.
type Server struct {
	analyzer Analyzer
	ingester Ingester
	exporter Exporter
	watch    WatchService
	config   *config.Config
	// configPath is where watch directory changes are persisted; empty disables persistence.
	configPath string
	configMu   sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil.
func NewServer(
	analyzer Analyzer,
	ingester Ingester,
	exporter Exporter,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		analyzer:   analyzer,
		ingester:   ingester,
		exporter:   exporter,
		watch:      watch,
		config:     cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/companies", s.handleCompanies)
		r.Get("/quarters", s.handleQuarters)
		r.Get("/stats", s.handleStats)
		r.Get("/questions", s.handleQuestions)
		r.Post("/ingest", s.handleIngest)
		r.Post("/export", s.handleExport)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
