package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/deepx-ocr/dxocr/internal/pdf"
	"github.com/deepx-ocr/dxocr/internal/pipeline"
)

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// staticVisHandler serves visualization images from the output dir. The
// filename is path-cleaned so requests cannot climb out of it.
func (s *Server) staticVisHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/static/vis/")
	cleaned := path.Clean("/" + name)
	if cleaned == "/" || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.VisOutputDir, filepath.FromSlash(cleaned)))
}

// ocrHandler is the main OCR entry point.
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	req := NewOCRRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeInvalidParameter, "Invalid JSON: "+err.Error())
		return
	}
	if msg, ok := req.Validate(); !ok {
		slog.Warn("Invalid OCR request", "error", msg)
		s.writeError(w, http.StatusBadRequest, CodeInvalidParameter, msg)
		return
	}

	switch req.FileType {
	case FileTypeImage:
		s.handleImageOCR(w, &req)
	case FileTypePDF:
		s.handlePDFOCR(w, &req)
	}
}

func (s *Server) downloadConfig() DownloadConfig {
	cfg := DefaultDownloadConfig()
	cfg.VerifySSL = !s.cfg.AllowInsecureDownloads
	if s.cfg.DownloadTimeout > 0 {
		cfg.Timeout = s.cfg.DownloadTimeout
	}
	return cfg
}

func (s *Server) handleImageOCR(w http.ResponseWriter, req *OCRRequest) {
	start := time.Now()
	img, err := DecodeInputImage(req.File, s.downloadConfig())
	if err != nil {
		ocrRequestsTotal.WithLabelValues("image", "decode_error").Inc()
		s.writeError(w, http.StatusBadRequest, CodeDecodeError, err.Error())
		return
	}

	result, ok := s.runTask(w, img, req.TaskConfig())
	if !ok {
		ocrRequestsTotal.WithLabelValues("image", "error").Inc()
		return
	}

	visURL := s.maybeVisualize(req, result)
	ocrRequestsTotal.WithLabelValues("image", "success").Inc()
	ocrProcessingDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	ocrRegionsDetected.WithLabelValues("image").Observe(float64(len(result.Entries)))
	s.writeJSON(w, OCRResponse{OCRResults: []OCRResultJSON{resultToJSON(result, visURL)}})
}

func (s *Server) handlePDFOCR(w http.ResponseWriter, req *OCRRequest) {
	start := time.Now()
	data, err := LoadInputBytes(req.File, s.downloadConfig())
	if err != nil {
		ocrRequestsTotal.WithLabelValues("pdf", "decode_error").Inc()
		s.writeError(w, http.StatusBadRequest, CodeDecodeError, err.Error())
		return
	}

	render := pdf.RenderFromBytes(data, pdf.RenderConfig{
		DPI:                  s.cfg.PDFLimits.DPI,
		MaxPages:             s.cfg.PDFLimits.MaxPages,
		MaxPixelsPerPage:     s.cfg.PDFLimits.MaxPixelsPerPage,
		MaxConcurrentRenders: s.cfg.PDFLimits.MaxConcurrentRenders,
	})
	if !render.OK() {
		ocrRequestsTotal.WithLabelValues("pdf", "render_error").Inc()
		s.writeError(w, pdf.HTTPStatus(render.ErrorCode), render.ErrorCode, render.ErrorMsg)
		return
	}

	// Each rendered page becomes an independent scheduler task; the
	// document response regroups them in page order.
	type pageTask struct {
		page *pdf.PageImage
		id   uint64
	}
	cfg := req.TaskConfig()
	tasks := make([]pageTask, 0, len(render.Pages))
	for i := range render.Pages {
		page := &render.Pages[i]
		if page.Failed() {
			continue
		}
		ctx, cancel := s.submitContext()
		id, err := s.coordinator.Submit(ctx, page.Image, cfg)
		cancel()
		if err != nil {
			s.handleSubmitError(w, err)
			ocrRequestsTotal.WithLabelValues("pdf", "error").Inc()
			return
		}
		tasks = append(tasks, pageTask{page: page, id: id})
	}

	pageResults := make([]OCRResultJSON, 0, len(tasks))
	for _, pt := range tasks {
		result, err := s.coordinator.Wait(pt.id, s.cfg.RequestTimeout)
		if err != nil {
			ocrRequestsTotal.WithLabelValues("pdf", "timeout").Inc()
			s.writeError(w, http.StatusGatewayTimeout, CodeInternalError,
				"Failed to get OCR results or timeout")
			return
		}
		if result.Failed() {
			ocrRequestsTotal.WithLabelValues("pdf", "error").Inc()
			s.writeError(w, http.StatusInternalServerError, CodeInternalError,
				"OCR processing failed: "+result.Err.Error())
			return
		}
		visURL := s.maybeVisualize(req, result)
		pageResults = append(pageResults, resultToJSON(result, visURL))
	}

	ocrRequestsTotal.WithLabelValues("pdf", "success").Inc()
	ocrProcessingDuration.WithLabelValues("pdf").Observe(time.Since(start).Seconds())
	s.writeJSON(w, OCRResponse{OCRResults: pageResults})
}

// runTask submits one image and waits for its result, translating
// coordinator errors to API responses. Returns false when a response
// was already written.
func (s *Server) runTask(w http.ResponseWriter, img image.Image, cfg pipeline.TaskConfig) (*pipeline.TaskResult, bool) {
	ctx, cancel := s.submitContext()
	id, err := s.coordinator.Submit(ctx, img, cfg)
	cancel()
	if err != nil {
		s.handleSubmitError(w, err)
		return nil, false
	}

	result, err := s.coordinator.Wait(id, s.cfg.RequestTimeout)
	if err != nil {
		schedulerTasksTotal.WithLabelValues("timeout").Inc()
		s.writeError(w, http.StatusGatewayTimeout, CodeInternalError,
			"Failed to get OCR results or timeout")
		return nil, false
	}
	if result.Failed() {
		schedulerTasksTotal.WithLabelValues("failed").Inc()
		s.writeError(w, http.StatusInternalServerError, CodeInternalError,
			"OCR processing failed in stage "+result.FailedStage+": "+result.Err.Error())
		return nil, false
	}
	schedulerTasksTotal.WithLabelValues("succeeded").Inc()
	return result, true
}

func (s *Server) submitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
}

func (s *Server) handleSubmitError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrSchedulerStopped) {
		schedulerTasksTotal.WithLabelValues("rejected").Inc()
		s.writeError(w, http.StatusServiceUnavailable, CodeInternalError, "Pipeline queue is full")
		return
	}
	s.writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
}

// maybeVisualize renders and stores the overlay when requested,
// returning its public URL.
func (s *Server) maybeVisualize(req *OCRRequest, result *pipeline.TaskResult) string {
	if !req.Visualize || result.ProcessedImage == nil {
		return ""
	}
	name, err := pipeline.SaveVisualization(result, s.cfg.VisOutputDir)
	if err != nil {
		slog.Warn("Failed to save visualization", "task_id", result.ID, "error", err)
		return ""
	}
	return s.cfg.VisURLPrefix + "/" + name
}
