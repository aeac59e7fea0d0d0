// Package config provides configuration loading and validation for minmax.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers    = errors.New("scan workers must be positive")
	ErrInvalidMode       = errors.New("invalid scan mode")
	ErrInvalidBufferSize = errors.New("invalid scan buffer size")
	ErrInvalidFormat     = errors.New("invalid output format")
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidLogFormat  = errors.New("invalid log format")
	ErrInvalidSampleRate = errors.New("trace sample ratio must be within [0, 1]")
)

// Scan modes.
const (
	ModeFloat  = "float"
	ModeInt    = "int"
	ModeString = "string"
)

// Default configuration values.
const (
	defaultMode       = ModeFloat
	defaultBufferSize = "1MiB"
	defaultFormat     = "table"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
	envPrefix         = "MINMAX"
	maxBufferSize     = 1 << 30
)

var (
	validModes      = []string{ModeFloat, ModeInt, ModeString}
	validFormats    = []string{"table", "text", "yaml"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Config holds all configuration for minmax.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ScanConfig controls how sources are read.
type ScanConfig struct {
	Mode       string `mapstructure:"mode"`
	BufferSize string `mapstructure:"buffer_size"`
	Workers    int    `mapstructure:"workers"`
	Strict     bool   `mapstructure:"strict"`
}

// BufferBytes returns BufferSize in bytes.
func (s ScanConfig) BufferBytes() (int, error) {
	size, err := humanize.ParseBytes(s.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidBufferSize, s.BufferSize, err)
	}

	if size == 0 || size > maxBufferSize {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBufferSize, s.BufferSize)
	}

	return int(size), nil
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Chart  string `mapstructure:"chart"`
	Color  bool   `mapstructure:"color"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds tracing and metrics export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	MetricsFile  string  `mapstructure:"metrics_file"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches for config.yaml in the usual locations.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/minmax")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	if used := viperCfg.ConfigFileUsed(); used != "" {
		schemaErr := validateFile(used)
		if schemaErr != nil {
			return nil, schemaErr
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("scan.workers", runtime.NumCPU())
	viperCfg.SetDefault("scan.mode", defaultMode)
	viperCfg.SetDefault("scan.strict", false)
	viperCfg.SetDefault("scan.buffer_size", defaultBufferSize)

	viperCfg.SetDefault("output.format", defaultFormat)
	viperCfg.SetDefault("output.color", true)
	viperCfg.SetDefault("output.chart", "")

	viperCfg.SetDefault("logging.level", defaultLogLevel)
	viperCfg.SetDefault("logging.format", defaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.metrics_file", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}

// Validate checks a Config built or modified outside LoadConfig.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Scan.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Scan.Workers)
	}

	if !slices.Contains(validModes, config.Scan.Mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, config.Scan.Mode)
	}

	_, sizeErr := config.Scan.BufferBytes()
	if sizeErr != nil {
		return sizeErr
	}

	if !slices.Contains(validFormats, config.Output.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Output.Format)
	}

	if !slices.Contains(validLogLevels, strings.ToLower(config.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if !slices.Contains(validLogFormats, config.Logging.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRate, config.Telemetry.SampleRatio)
	}

	return nil
}
