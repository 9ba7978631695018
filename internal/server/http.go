package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jonas0017/speechService/internal/audio"
	"github.com/Jonas0017/speechService/internal/config"
	"github.com/Jonas0017/speechService/internal/inference"
	"github.com/Jonas0017/speechService/internal/metrics"
	"github.com/Jonas0017/speechService/internal/service"
)

// uploadField is the multipart form field carrying the audio file.
const uploadField = "audioFile"

// ModelInfo describes the loaded model for the health endpoint.
type ModelInfo struct {
	Model    string
	Language string
}

// HTTPServer serves the transcription API.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	orch      *service.Orchestrator
	collector *metrics.Collector
	info      ModelInfo
}

// NewHTTPServer builds the server with all routes registered. gatherer
// backs the Prometheus endpoint.
func NewHTTPServer(cfg *config.Config, orch *service.Orchestrator, collector *metrics.Collector,
	gatherer prometheus.Gatherer, info ModelInfo, logger *slog.Logger) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		orch:      orch,
		collector: collector,
		info:      info,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))
	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  cfg.Server.GetIdleTimeout(),
	}

	return h
}

// Handler exposes the routed handler, used by tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Start begins serving in a background goroutine.
func (h *HTTPServer) Start() {
	h.logger.Info("starting HTTP server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts the server down.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("stopping HTTP server")
	return h.server.Shutdown(ctx)
}

// withMetrics wraps a handler with request accounting.
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		h.collector.RecordHTTPRequest(r.Method, endpoint,
			fmt.Sprintf("%d", ww.statusCode), time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	maxSize := h.config.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+64*1024) // form overhead

	// Rejections here never reach the pipeline, so they are accounted
	// for directly; every terminal failure is recorded exactly once.
	reject := func(status int, message string) {
		h.collector.RecordFailure(time.Since(start))
		writeError(w, status, message)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reject(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds maximum size of %d bytes", maxSize))
			return
		}
		reject(http.StatusBadRequest, "no audio file provided in 'audioFile' field")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".wav") {
		reject(http.StatusBadRequest, "only .wav files are accepted")
		return
	}

	if err := audio.CheckSize(header.Size, maxSize); err != nil {
		reject(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds maximum size of %d bytes", maxSize))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		reject(http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.orch.Process(r.Context(), service.Submission{
		Data:     data,
		Filename: header.Filename,
		Language: r.FormValue("language"),
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcription":   result.Transcription,
		"duration":        result.Duration,
		"file_size":       result.FileSize,
		"processing_time": result.ProcessingTime,
		"status":          "success",
	})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"model":     h.info.Model,
		"language":  h.info.Language,
		"uptime":    metrics.FormatUptime(h.collector.Uptime()),
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.Snapshot())
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "speech transcription service",
		"endpoints": map[string]string{
			"POST /transcribe": "transcribe a WAV file (multipart field 'audioFile', optional 'language')",
			"GET /health":      "service health and model info",
			"GET /stats":       "request statistics",
			"GET /metrics":     "Prometheus metrics",
		},
	})
}

// statusForError maps pipeline errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, audio.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, inference.ErrOverloaded):
		return http.StatusTooManyRequests
	case errors.Is(err, inference.ErrInference):
		return http.StatusInternalServerError
	case errors.Is(err, audio.ErrFormat),
		errors.Is(err, audio.ErrUnsupported),
		errors.Is(err, audio.ErrTruncated),
		errors.Is(err, audio.ErrEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
