package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/commute/pkg/config"
)

const (
	fileMode       = 0o600
	testWorkers    = 3
	defaultBufSize = 1 << 20
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), fileMode))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, runtime.NumCPU(), cfg.Scan.Workers)
	assert.Equal(t, config.ModeFloat, cfg.Scan.Mode)
	assert.False(t, cfg.Scan.Strict)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.True(t, cfg.Output.Color)
	assert.Empty(t, cfg.Output.Chart)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)

	size, err := cfg.Scan.BufferBytes()
	require.NoError(t, err)
	assert.Equal(t, defaultBufSize, size)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
scan:
  workers: 3
  mode: int
  strict: true
  buffer_size: 64KiB
output:
  format: yaml
  color: false
  chart: bounds.html
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  metrics_file: metrics.prom
  sample_ratio: 0.5
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, testWorkers, cfg.Scan.Workers)
	assert.Equal(t, config.ModeInt, cfg.Scan.Mode)
	assert.True(t, cfg.Scan.Strict)
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.False(t, cfg.Output.Color)
	assert.Equal(t, "bounds.html", cfg.Output.Chart)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.Equal(t, "metrics.prom", cfg.Telemetry.MetricsFile)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRatio, 1e-9)

	size, err := cfg.Scan.BufferBytes()
	require.NoError(t, err)
	assert.Equal(t, 64<<10, size)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MINMAX_SCAN_MODE", "string")
	t.Setenv("MINMAX_SCAN_WORKERS", "2")
	t.Setenv("MINMAX_OUTPUT_FORMAT", "text")

	cfg, err := config.LoadConfig(writeConfig(t, "scan:\n  mode: int\n"))
	require.NoError(t, err)

	assert.Equal(t, config.ModeString, cfg.Scan.Mode)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "unknown_key", content: "scan:\n  threads: 4\n", wantErr: config.ErrConfigSchema},
		{name: "unknown_section", content: "server:\n  port: 80\n", wantErr: config.ErrConfigSchema},
		{name: "bad_mode", content: "scan:\n  mode: complex\n", wantErr: config.ErrConfigSchema},
		{name: "zero_workers", content: "scan:\n  workers: 0\n", wantErr: config.ErrConfigSchema},
		{name: "bad_buffer_size", content: "scan:\n  buffer_size: lots\n", wantErr: config.ErrInvalidBufferSize},
		{name: "zero_buffer_size", content: "scan:\n  buffer_size: 0B\n", wantErr: config.ErrInvalidBufferSize},
		{name: "bad_log_level", content: "logging:\n  level: chatty\n", wantErr: config.ErrInvalidLogLevel},
		{name: "bad_format", content: "output:\n  format: xml\n", wantErr: config.ErrConfigSchema},
		{name: "ratio_out_of_range", content: "telemetry:\n  sample_ratio: 2\n", wantErr: config.ErrConfigSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{name: "workers", mutate: func(cfg *config.Config) { cfg.Scan.Workers = -1 }, wantErr: config.ErrInvalidWorkers},
		{name: "mode", mutate: func(cfg *config.Config) { cfg.Scan.Mode = "decimal" }, wantErr: config.ErrInvalidMode},
		{name: "format", mutate: func(cfg *config.Config) { cfg.Output.Format = "csv" }, wantErr: config.ErrInvalidFormat},
		{name: "log_format", mutate: func(cfg *config.Config) { cfg.Logging.Format = "xml" }, wantErr: config.ErrInvalidLogFormat},
		{name: "sample_ratio", mutate: func(cfg *config.Config) { cfg.Telemetry.SampleRatio = -0.1 }, wantErr: config.ErrInvalidSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clone := *cfg
			tt.mutate(&clone)
			assert.ErrorIs(t, clone.Validate(), tt.wantErr)
		})
	}
}

func TestValidateYAML(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.ValidateYAML(nil))
	require.NoError(t, config.ValidateYAML([]byte("scan:\n  buffer_size: 4096\n")))
	assert.ErrorIs(t, config.ValidateYAML([]byte("output:\n  color: maybe\n")), config.ErrConfigSchema)
	assert.Error(t, config.ValidateYAML([]byte("scan: [unterminated\n")))
}
