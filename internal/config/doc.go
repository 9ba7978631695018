// Package config provides configuration loading and validation for the speech service.
// It handles YAML-based configuration with struct validation and supports
// environment variable overrides for the operator-facing knobs.
package config
