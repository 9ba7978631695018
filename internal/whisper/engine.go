package whisper

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Config contains everything needed to load the offline Whisper model
type Config struct {
	Model      string // size identifier (tiny, base, ...)
	Encoder    string // path to the encoder ONNX file
	Decoder    string // path to the decoder ONNX file
	Tokens     string // path to the tokens file
	Language   string
	SampleRate int
	NumThreads int
	Provider   string
}

// Engine holds the loaded recognizer. A single Engine is not safe for
// concurrent Transcribe calls; the inference gate bounds access to it.
type Engine struct {
	recognizer *sherpa.OfflineRecognizer
	config     Config
	logger     *slog.Logger
}

// NewEngine loads the Whisper model from disk. This is the expensive
// one-time startup cost; failures here are fatal to the process.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, path := range []string{cfg.Encoder, cfg.Decoder, cfg.Tokens} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", path)
		}
	}

	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 1
	}
	if cfg.SampleRate < 1 {
		cfg.SampleRate = 16000
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{}
	sherpaConfig.FeatConfig = sherpa.FeatureConfig{
		SampleRate: cfg.SampleRate,
		FeatureDim: 80,
	}
	sherpaConfig.ModelConfig.Whisper.Encoder = cfg.Encoder
	sherpaConfig.ModelConfig.Whisper.Decoder = cfg.Decoder
	sherpaConfig.ModelConfig.Whisper.Language = cfg.Language
	sherpaConfig.ModelConfig.Whisper.Task = "transcribe"
	sherpaConfig.ModelConfig.Whisper.TailPaddings = -1
	sherpaConfig.ModelConfig.Tokens = cfg.Tokens
	sherpaConfig.ModelConfig.NumThreads = cfg.NumThreads
	sherpaConfig.ModelConfig.Provider = cfg.Provider
	sherpaConfig.ModelConfig.Debug = 0
	sherpaConfig.DecodingMethod = "greedy_search"

	start := time.Now()
	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create offline recognizer (model=%s, provider=%s)",
			cfg.Model, cfg.Provider)
	}

	logger.Info("Whisper model loaded",
		slog.String("model", cfg.Model),
		slog.String("language", cfg.Language),
		slog.String("provider", cfg.Provider),
		slog.Int("num_threads", cfg.NumThreads),
		slog.Duration("load_time", time.Since(start)),
	)

	return &Engine{
		recognizer: recognizer,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Transcribe runs the model over normalized mono samples and returns the
// recognized text. The language the model decodes in is fixed at load time;
// a differing per-request language is logged and the configured one is used.
func (e *Engine) Transcribe(samples []float32, sampleRate int, language string) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("cannot transcribe empty audio")
	}

	if language != "" && language != e.config.Language {
		e.logger.Debug("Requested language differs from loaded model",
			slog.String("requested", language),
			slog.String("configured", e.config.Language),
		)
	}

	stream := sherpa.NewOfflineStream(e.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	e.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", fmt.Errorf("recognizer returned no result")
	}

	return strings.TrimSpace(result.Text), nil
}

// Model returns the configured model size identifier
func (e *Engine) Model() string {
	return e.config.Model
}

// Language returns the language the model was loaded with
func (e *Engine) Language() string {
	return e.config.Language
}

// Close releases the recognizer resources
func (e *Engine) Close() {
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}
