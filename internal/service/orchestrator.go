package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Jonas0017/speechService/internal/audio"
	"github.com/Jonas0017/speechService/internal/inference"
	"github.com/Jonas0017/speechService/internal/metrics"
)

// PlaceholderTranscript is returned when the model produces no text for
// otherwise valid audio.
const PlaceholderTranscript = "Audio contains no detectable speech"

// Stage identifies how far a request got through the pipeline before
// failing. It is attached to every pipeline error.
type Stage string

const (
	StageReceived   Stage = "received"
	StageValidated  Stage = "validated"
	StageDecoded    Stage = "decoded"
	StageNormalized Stage = "normalized"
	StageQueued     Stage = "queued"
	StageInferred   Stage = "inferred"
)

// Error wraps a pipeline failure with the stage it occurred at.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Submission is one uploaded file to transcribe.
type Submission struct {
	Data     []byte
	Filename string
	Language string
}

// Result is a completed transcription.
type Result struct {
	Transcription  string
	Duration       float64
	FileSize       int64
	ProcessingTime float64
}

// Limits carries the pipeline's admission bounds.
type Limits struct {
	MaxFileSize int64
	MinDuration float64
	MaxDuration float64
}

// Orchestrator drives submissions through the transcription pipeline.
type Orchestrator struct {
	gate       *inference.Gate
	collector  *metrics.Collector
	limits     Limits
	targetRate int
	language   string
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline together. language is the default
// used when a submission carries none.
func NewOrchestrator(gate *inference.Gate, collector *metrics.Collector, limits Limits, targetRate int, language string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gate:       gate,
		collector:  collector,
		limits:     limits,
		targetRate: targetRate,
		language:   language,
		logger:     logger,
	}
}

// Process runs one submission through validation, decoding, normalization
// and gated inference. Every call records exactly one success or failure
// in the collector.
func (o *Orchestrator) Process(ctx context.Context, sub Submission) (*Result, error) {
	requestID := uuid.NewString()
	start := time.Now()
	log := o.logger.With("request_id", requestID, "filename", sub.Filename)

	o.collector.InFlight.Inc()
	defer o.collector.InFlight.Dec()

	var procErr error
	defer func() {
		elapsed := time.Since(start)
		if procErr != nil {
			o.collector.RecordFailure(elapsed)
		} else {
			o.collector.RecordSuccess(elapsed)
		}
	}()

	fileSize := int64(len(sub.Data))
	log.Info("transcription request received", "size_bytes", fileSize)
	o.collector.RecordUpload(fileSize)

	if err := audio.CheckSize(fileSize, o.limits.MaxFileSize); err != nil {
		procErr = &Error{Stage: StageReceived, Err: err}
		log.Warn("upload rejected", "error", err)
		return nil, procErr
	}

	desc, err := audio.Validate(sub.Data)
	if err != nil {
		procErr = &Error{Stage: StageValidated, Err: err}
		log.Warn("container validation failed", "error", err)
		return nil, procErr
	}
	log.Debug("container validated",
		"channels", desc.Channels,
		"sample_rate", desc.SampleRate,
		"bits_per_sample", desc.BitsPerSample)

	pcm, err := audio.Decode(sub.Data, desc)
	if err != nil {
		procErr = &Error{Stage: StageDecoded, Err: err}
		log.Warn("PCM decode failed", "error", err)
		return nil, procErr
	}

	norm, err := audio.Normalize(pcm, o.targetRate)
	if err != nil {
		procErr = &Error{Stage: StageNormalized, Err: err}
		log.Warn("normalization failed", "error", err)
		return nil, procErr
	}

	duration := norm.Duration()
	if duration < o.limits.MinDuration {
		procErr = &Error{Stage: StageNormalized, Err: fmt.Errorf("%w: audio too short (%.2fs, minimum %.1fs)",
			audio.ErrUnsupported, duration, o.limits.MinDuration)}
		log.Warn("duration below minimum", "duration", duration)
		return nil, procErr
	}
	if duration > o.limits.MaxDuration {
		procErr = &Error{Stage: StageNormalized, Err: fmt.Errorf("%w: audio too long (%.2fs, maximum %.1fs)",
			audio.ErrUnsupported, duration, o.limits.MaxDuration)}
		log.Warn("duration above maximum", "duration", duration)
		return nil, procErr
	}

	slot, err := o.gate.Acquire(ctx)
	if err != nil {
		procErr = &Error{Stage: StageQueued, Err: err}
		log.Warn("no inference slot", "error", err)
		return nil, procErr
	}
	defer slot.Release()

	language := sub.Language
	if language == "" {
		language = o.language
	}

	text, err := o.gate.Infer(ctx, slot, norm.Samples, norm.SampleRate, language)
	if err != nil {
		procErr = &Error{Stage: StageInferred, Err: err}
		log.Error("inference failed", "error", err)
		return nil, procErr
	}
	if text == "" {
		text = PlaceholderTranscript
	}

	processingTime := time.Since(start).Seconds()
	log.Info("transcription complete",
		"duration", fmt.Sprintf("%.2fs", duration),
		"processing_time", fmt.Sprintf("%.2fs", processingTime),
		"transcript_len", len(text))

	return &Result{
		Transcription:  text,
		Duration:       duration,
		FileSize:       fileSize,
		ProcessingTime: processingTime,
	}, nil
}
