package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	Whisper   WhisperConfig   `yaml:"whisper"`
	Inference InferenceConfig `yaml:"inference"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address      string `yaml:"address"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds
}

// UploadConfig contains upload acceptance limits
type UploadConfig struct {
	MaxFileSize int64   `yaml:"max_file_size"` // bytes
	MinDuration float64 `yaml:"min_duration"`  // seconds
	MaxDuration float64 `yaml:"max_duration"`  // seconds
}

// WhisperConfig contains speech model configuration
type WhisperConfig struct {
	Model      string `yaml:"model"` // tiny, base, small, medium, large
	Encoder    string `yaml:"encoder"`
	Decoder    string `yaml:"decoder"`
	Tokens     string `yaml:"tokens"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	NumThreads int    `yaml:"num_threads"`
	Provider   string `yaml:"provider"` // cpu, cuda, coreml
}

// InferenceConfig bounds concurrent access to the loaded model
type InferenceConfig struct {
	MaxConcurrent  int     `yaml:"max_concurrent"`
	AcquireTimeout float64 `yaml:"acquire_timeout"` // seconds, 0 means fail fast
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration file, applies environment overrides and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets operators adjust the most common knobs without
// editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		c.Whisper.Model = v
	}
	if v := os.Getenv("LANGUAGE"); v != "" {
		c.Whisper.Language = v
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Upload.MaxFileSize = n
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}

	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	return nil
}

// Validate validates upload limits
func (u *UploadConfig) Validate() error {
	if u.MaxFileSize < 1024 {
		return fmt.Errorf("max_file_size must be at least 1024 bytes, got %d", u.MaxFileSize)
	}

	if u.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", u.MinDuration)
	}

	if u.MaxDuration <= u.MinDuration {
		return fmt.Errorf("max_duration (%f) must be greater than min_duration (%f)",
			u.MaxDuration, u.MinDuration)
	}

	return nil
}

// Validate validates speech model configuration
func (w *WhisperConfig) Validate() error {
	validModels := map[string]bool{
		"tiny": true, "base": true, "small": true, "medium": true, "large": true,
	}
	if !validModels[w.Model] {
		return fmt.Errorf("model must be one of [tiny, base, small, medium, large], got '%s'", w.Model)
	}

	if w.Encoder == "" {
		return fmt.Errorf("encoder cannot be empty")
	}

	if w.Decoder == "" {
		return fmt.Errorf("decoder cannot be empty")
	}

	if w.Tokens == "" {
		return fmt.Errorf("tokens cannot be empty")
	}

	if w.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if w.SampleRate < 8000 || w.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", w.SampleRate)
	}

	if w.NumThreads < 1 {
		return fmt.Errorf("num_threads must be at least 1, got %d", w.NumThreads)
	}

	validProviders := map[string]bool{"cpu": true, "cuda": true, "coreml": true}
	if !validProviders[w.Provider] {
		return fmt.Errorf("provider must be one of [cpu, cuda, coreml], got '%s'", w.Provider)
	}

	return nil
}

// Validate validates inference concurrency configuration
func (i *InferenceConfig) Validate() error {
	if i.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", i.MaxConcurrent)
	}

	if i.AcquireTimeout < 0 {
		return fmt.Errorf("acquire_timeout cannot be negative, got %f", i.AcquireTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a time.Duration
func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetAcquireTimeout returns the slot wait timeout as a time.Duration
func (i *InferenceConfig) GetAcquireTimeout() time.Duration {
	return time.Duration(i.AcquireTimeout * float64(time.Second))
}

// GetMinDuration returns the minimum accepted audio duration as a time.Duration
func (u *UploadConfig) GetMinDuration() time.Duration {
	return time.Duration(u.MinDuration * float64(time.Second))
}

// GetMaxDuration returns the maximum accepted audio duration as a time.Duration
func (u *UploadConfig) GetMaxDuration() time.Duration {
	return time.Duration(u.MaxDuration * float64(time.Second))
}
