package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deepx-ocr/dxocr/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes one shared pipeline instance to many concurrent HTTP
// clients through the request coordinator.
type Server struct {
	cfg         Config
	pipe        *pipeline.Pipeline
	scheduler   *pipeline.Scheduler
	coordinator *pipeline.Coordinator
	httpServer  *http.Server
}

// New builds the pipeline, starts the scheduler, and wires the routes.
func New(cfg Config) (*Server, error) {
	b := pipeline.NewBuilder().WithModelsDir(cfg.Pipeline.ModelsDir)
	b = b.WithServerModels(cfg.Pipeline.Family != "mobile")
	// Optional stages load only when enabled in the pipeline config;
	// per-request flags have no effect on a stage that was not loaded.
	b = b.WithOrientation(cfg.Pipeline.Orientation.Enabled).
		WithTextLineOrientation(cfg.Pipeline.TextLineOrientation.Enabled).
		WithRectification(cfg.Pipeline.Rectification.Enabled).
		WithScheduler(cfg.Pipeline.Scheduler).
		WithCoordinator(cfg.Pipeline.Coordinator)

	pipe, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return NewWithPipeline(cfg, pipe), nil
}

// NewWithPipeline wires a server around an already-built pipeline.
func NewWithPipeline(cfg Config, pipe *pipeline.Pipeline) *Server {
	sched := pipeline.NewScheduler(pipe, cfg.Pipeline.Scheduler)
	sched.Start()
	coord := pipeline.NewCoordinator(sched, cfg.Pipeline.Coordinator)
	return &Server{
		cfg:         cfg,
		pipe:        pipe,
		scheduler:   sched,
		coordinator: coord,
	}
}

// Routes returns the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocr", s.loggingMiddleware(s.authMiddleware(s.ocrHandler)))
	mux.HandleFunc("/health", s.loggingMiddleware(s.healthHandler))
	mux.HandleFunc("/static/vis/", s.loggingMiddleware(s.staticVisHandler))
	mux.HandleFunc("/ws/ocr", s.authMiddleware(s.wsOCRHandler))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("OCR server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains HTTP connections, then the pipeline: scheduler first
// so in-flight tasks complete, coordinator after its result channel
// closes, models last.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.scheduler.Stop()
	s.coordinator.Close()
	if cerr := s.pipe.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Coordinator exposes the request coordinator, mainly for tests.
func (s *Server) Coordinator() *pipeline.Coordinator { return s.coordinator }
