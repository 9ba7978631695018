package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jonas0017/speechService/internal/config"
	"github.com/Jonas0017/speechService/internal/inference"
	"github.com/Jonas0017/speechService/internal/metrics"
	"github.com/Jonas0017/speechService/internal/server"
	"github.com/Jonas0017/speechService/internal/service"
	"github.com/Jonas0017/speechService/internal/whisper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.Address),
		slog.Int("port", cfg.Server.Port),
		slog.String("model", cfg.Whisper.Model),
		slog.String("language", cfg.Whisper.Language),
		slog.Int("sample_rate", cfg.Whisper.SampleRate),
		slog.Int64("max_file_size", cfg.Upload.MaxFileSize),
		slog.Int("max_concurrent", cfg.Inference.MaxConcurrent),
		slog.String("log_level", cfg.Logging.Level),
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	logger.Info("Prometheus metrics initialized")

	engine, err := whisper.NewEngine(whisper.Config{
		Model:      cfg.Whisper.Model,
		Encoder:    cfg.Whisper.Encoder,
		Decoder:    cfg.Whisper.Decoder,
		Tokens:     cfg.Whisper.Tokens,
		Language:   cfg.Whisper.Language,
		SampleRate: cfg.Whisper.SampleRate,
		NumThreads: cfg.Whisper.NumThreads,
		Provider:   cfg.Whisper.Provider,
	}, logger)
	if err != nil {
		logger.Error("Failed to load speech model", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	gate := inference.NewGate(engine, cfg.Inference.MaxConcurrent, cfg.Inference.GetAcquireTimeout(), logger)
	logger.Info("Inference gate initialized",
		slog.Int("max_concurrent", cfg.Inference.MaxConcurrent),
		slog.Duration("acquire_timeout", cfg.Inference.GetAcquireTimeout()),
	)

	orch := service.NewOrchestrator(gate, collector, service.Limits{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MinDuration: cfg.Upload.MinDuration,
		MaxDuration: cfg.Upload.MaxDuration,
	}, cfg.Whisper.SampleRate, cfg.Whisper.Language, logger)

	httpServer := server.NewHTTPServer(cfg, orch, collector, registry, server.ModelInfo{
		Model:    engine.Model(),
		Language: engine.Language(),
	}, logger)
	logger.Info("HTTP server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	httpServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	snap := collector.Snapshot()
	logger.Info("Final service statistics",
		slog.Uint64("total_requests", snap.TotalRequests),
		slog.Uint64("successful", snap.SuccessfulCount),
		slog.Uint64("failed", snap.FailedCount),
		slog.String("uptime", snap.Uptime),
	)

	logger.Info("Service stopped")
}

// initLogger creates the structured logger from configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
