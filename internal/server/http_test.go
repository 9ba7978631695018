package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jonas0017/speechService/internal/audio"
	"github.com/Jonas0017/speechService/internal/config"
	"github.com/Jonas0017/speechService/internal/inference"
	"github.com/Jonas0017/speechService/internal/metrics"
	"github.com/Jonas0017/speechService/internal/service"
)

type stubModel struct {
	text string
	err  error
}

func (m *stubModel) Transcribe(samples []float32, sampleRate int, language string) (string, error) {
	return m.text, m.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:      "127.0.0.1",
			Port:         8000,
			ReadTimeout:  10,
			WriteTimeout: 60,
			IdleTimeout:  60,
		},
		Upload: config.UploadConfig{
			MaxFileSize: 10 * 1024 * 1024,
			MinDuration: 0.1,
			MaxDuration: 300,
		},
		Whisper: config.WhisperConfig{
			Model:      "base",
			Language:   "en",
			SampleRate: 16000,
		},
		Inference: config.InferenceConfig{
			MaxConcurrent:  2,
			AcquireTimeout: 1,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, model inference.Model) (*HTTPServer, *inference.Gate) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	gate := inference.NewGate(model, cfg.Inference.MaxConcurrent, cfg.Inference.GetAcquireTimeout(), nil)
	orch := service.NewOrchestrator(gate, collector, service.Limits{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MinDuration: cfg.Upload.MinDuration,
		MaxDuration: cfg.Upload.MaxDuration,
	}, cfg.Whisper.SampleRate, cfg.Whisper.Language, nil)
	info := ModelInfo{Model: cfg.Whisper.Model, Language: cfg.Whisper.Language}
	return NewHTTPServer(cfg, orch, collector, reg, info, nil), gate
}

func multipartUpload(t *testing.T, filename string, content []byte, language string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(uploadField, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func testWAV(t *testing.T, n int) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(make([]int16, n), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	return data
}

func postTranscribe(t *testing.T, h *HTTPServer, filename string, content []byte, language string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content, language)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTranscribeSuccess(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "hello world"})

	rec := postTranscribe(t, h, "sample.wav", testWAV(t, 8000), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["transcription"] != "hello world" {
		t.Errorf("transcription = %v", resp["transcription"])
	}
	if resp["status"] != "success" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["duration"] != 0.5 {
		t.Errorf("duration = %v, want 0.5", resp["duration"])
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	req := httptest.NewRequest(http.MethodPost, "/transcribe", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=none")
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "error" {
		t.Errorf("status field = %q, want error", resp["status"])
	}
}

func TestTranscribeRejectsNonWAVExtension(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	rec := postTranscribe(t, h, "audio.mp3", testWAV(t, 8000), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribeAcceptsUppercaseExtension(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	rec := postTranscribe(t, h, "AUDIO.WAV", testWAV(t, 8000), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribeFileTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 1024
	h, _ := newTestServer(t, cfg, &stubModel{text: "x"})

	rec := postTranscribe(t, h, "big.wav", testWAV(t, 8000), "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestTranscribeInvalidContainer(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	rec := postTranscribe(t, h, "junk.wav", []byte("this is not audio"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribeOverloaded(t *testing.T) {
	cfg := testConfig()
	cfg.Inference.MaxConcurrent = 1
	cfg.Inference.AcquireTimeout = 0
	h, gate := newTestServer(t, cfg, &stubModel{text: "x"})

	held, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer held.Release()

	rec := postTranscribe(t, h, "busy.wav", testWAV(t, 8000), "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestTranscribeInferenceFailure(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{err: errors.New("engine fault")})

	rec := postTranscribe(t, h, "sample.wav", testWAV(t, 8000), "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["model"] != "base" {
		t.Errorf("model = %v, want base", resp["model"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	// One success and one failure to populate the counters.
	postTranscribe(t, h, "a.wav", testWAV(t, 8000), "")
	postTranscribe(t, h, "b.wav", []byte("junk"), "")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if snap.TotalRequests != 2 || snap.SuccessfulCount != 1 || snap.FailedCount != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStatsCountsRejectedUploads(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 1024
	h, _ := newTestServer(t, cfg, &stubModel{text: "x"})

	// Rejected before the pipeline: wrong extension, then oversize.
	if rec := postTranscribe(t, h, "audio.mp3", testWAV(t, 200), ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad extension: status = %d, want 400", rec.Code)
	}
	if rec := postTranscribe(t, h, "big.wav", testWAV(t, 8000), ""); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize: status = %d, want 413", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if snap.TotalRequests != 2 || snap.FailedCount != 2 {
		t.Errorf("snapshot = %+v, want 2 total, 2 failed", snap)
	}
	if snap.SuccessfulCount != 0 {
		t.Errorf("SuccessfulCount = %d, want 0", snap.SuccessfulCount)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	postTranscribe(t, h, "a.wav", testWAV(t, 8000), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("stt_transcription_requests_total")) {
		t.Error("metrics output missing transcription counter")
	}
}

func TestRootEndpoint(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerStop(t *testing.T) {
	h, _ := newTestServer(t, testConfig(), &stubModel{text: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
