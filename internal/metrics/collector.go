package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot is a consistent view of the service counters, served by the
// stats endpoint.
type Snapshot struct {
	TotalRequests     uint64  `json:"total_requests"`
	SuccessfulCount   uint64  `json:"successful_transcriptions"`
	FailedCount       uint64  `json:"failed_transcriptions"`
	AvgProcessingTime float64 `json:"avg_processing_time_seconds"`
	Uptime            string  `json:"uptime"`
}

// Collector owns the Prometheus metrics and the mutable counters behind
// Snapshot. All methods are safe for concurrent use.
type Collector struct {
	mu              sync.RWMutex
	total           uint64
	successes       uint64
	failures        uint64
	processingTotal time.Duration
	startTime       time.Time

	Requests           *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	UploadSize         prometheus.Histogram
	InFlight           prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		startTime: time.Now(),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of transcription requests by outcome",
		}, []string{"outcome"}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_processing_duration_seconds",
			Help:    "End-to-end processing time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_upload_size_bytes",
			Help:    "Size of uploaded audio files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KB to ~16MB
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_requests_in_flight",
			Help: "Current number of transcription requests being processed",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSuccess records a completed transcription with its processing time.
func (c *Collector) RecordSuccess(elapsed time.Duration) {
	c.Requests.WithLabelValues("success").Inc()
	c.ProcessingDuration.Observe(elapsed.Seconds())

	c.mu.Lock()
	c.total++
	c.successes++
	c.processingTotal += elapsed
	c.mu.Unlock()
}

// RecordFailure records a transcription that ended in an error.
func (c *Collector) RecordFailure(elapsed time.Duration) {
	c.Requests.WithLabelValues("error").Inc()
	c.ProcessingDuration.Observe(elapsed.Seconds())

	c.mu.Lock()
	c.total++
	c.failures++
	c.processingTotal += elapsed
	c.mu.Unlock()
}

// RecordUpload records the size of an accepted upload.
func (c *Collector) RecordUpload(sizeBytes int64) {
	c.UploadSize.Observe(float64(sizeBytes))
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, endpoint, statusCode string, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	c.HTTPDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// Snapshot returns a consistent copy of the counters. Success and failure
// counts always sum to the total.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	avg := 0.0
	if c.total > 0 {
		avg = c.processingTotal.Seconds() / float64(c.total)
	}
	return Snapshot{
		TotalRequests:     c.total,
		SuccessfulCount:   c.successes,
		FailedCount:       c.failures,
		AvgProcessingTime: avg,
		Uptime:            FormatUptime(time.Since(c.startTime)),
	}
}

// Uptime reports how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// FormatUptime renders a duration as days, hours and minutes.
func FormatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
