package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrOverloaded indicates that no inference slot became available
	// within the configured acquisition window.
	ErrOverloaded = errors.New("all inference slots busy")

	// ErrInference indicates that the model itself failed on an input
	// that passed validation.
	ErrInference = errors.New("inference failed")
)

// Model is the transcription backend guarded by the gate. Implementations
// must be safe for the level of concurrency the gate is configured with.
type Model interface {
	Transcribe(samples []float32, sampleRate int, language string) (string, error)
}

// Gate bounds concurrent access to a single loaded model.
type Gate struct {
	model   Model
	sem     *semaphore.Weighted
	limit   int
	timeout time.Duration
	logger  *slog.Logger
	active  atomic.Int64
}

// NewGate creates a gate admitting at most limit concurrent inferences.
// A zero timeout makes Acquire fail fast instead of waiting.
func NewGate(model Model, limit int, timeout time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		model:   model,
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		timeout: timeout,
		logger:  logger,
	}
}

// Slot is a held admission ticket. Release is idempotent.
type Slot struct {
	gate *Gate
	once sync.Once
}

// Release returns the slot to the gate. Calling it more than once is safe.
func (s *Slot) Release() {
	s.once.Do(func() {
		s.gate.active.Add(-1)
		s.gate.sem.Release(1)
	})
}

// Acquire blocks until a slot is free, the timeout elapses, or ctx is
// cancelled. Timeout expiry yields ErrOverloaded; caller cancellation
// yields the context error unchanged.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	if g.timeout == 0 {
		if !g.sem.TryAcquire(1) {
			return nil, fmt.Errorf("%w: %d active", ErrOverloaded, g.limit)
		}
		g.active.Add(1)
		return &Slot{gate: g}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: waited %s", ErrOverloaded, g.timeout)
	}
	g.active.Add(1)
	return &Slot{gate: g}, nil
}

// Infer runs the model on normalized audio while holding slot. The slot is
// not released here; callers defer Release immediately after Acquire so the
// slot is returned on every path.
func (g *Gate) Infer(ctx context.Context, slot *Slot, samples []float32, sampleRate int, language string) (string, error) {
	if slot == nil {
		return "", fmt.Errorf("%w: no slot held", ErrInference)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := g.model.Transcribe(samples, sampleRate, language)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	return text, nil
}

// Active reports the number of slots currently held.
func (g *Gate) Active() int {
	return int(g.active.Load())
}

// Limit reports the configured concurrency bound.
func (g *Gate) Limit() int {
	return g.limit
}
