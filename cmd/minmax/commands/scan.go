package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/commute/pkg/alg/minmax"
	"github.com/Sumatoshi-tech/commute/pkg/config"
	"github.com/Sumatoshi-tech/commute/pkg/observability"
	"github.com/Sumatoshi-tech/commute/pkg/report"
	"github.com/Sumatoshi-tech/commute/pkg/scan"
	"github.com/Sumatoshi-tech/commute/pkg/version"
)

const (
	scanCmdUse   = "scan [sources...]"
	scanCmdShort = "Scan sources and report per-source and total bounds"
	scanCmdLong  = `Scan reads one sample per line from each source. A source is a file path,
"-" for stdin, or a path ending in .lz4 for an LZ4-compressed file. With no
sources, stdin is read. Blank lines and lines starting with # are ignored.`

	flagMode        = "mode"
	flagWorkers     = "workers"
	flagStrict      = "strict"
	flagBufferSize  = "buffer-size"
	flagFormat      = "format"
	flagChart       = "chart"
	flagMetricsFile = "metrics-file"
	flagNoColor     = "no-color"

	chartFilePerm = 0o600
	spanScan      = "minmax.scan"
)

type scanFlags struct {
	mode        string
	bufferSize  string
	format      string
	chart       string
	metricsFile string
	workers     int
	strict      bool
	noColor     bool
}

func newScanCommand(root *rootOptions) *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   scanCmdUse,
		Short: scanCmdShort,
		Long:  scanCmdLong,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.mode, flagMode, config.ModeFloat, "sample type: float, int or string")
	cmd.Flags().IntVar(&flags.workers, flagWorkers, 0, "sources scanned concurrently (default: number of CPUs)")
	cmd.Flags().BoolVar(&flags.strict, flagStrict, false, "fail on the first unparsable line")
	cmd.Flags().StringVar(&flags.bufferSize, flagBufferSize, "1MiB", "longest accepted line, e.g. 64KiB")
	cmd.Flags().StringVarP(&flags.format, flagFormat, "f", "table", "output format: table, text or yaml")
	cmd.Flags().StringVar(&flags.chart, flagChart, "", "write an HTML bar chart of per-source bounds to this file")
	cmd.Flags().StringVar(&flags.metricsFile, flagMetricsFile, "", "write Prometheus metrics to this file on exit")
	cmd.Flags().BoolVar(&flags.noColor, flagNoColor, false, "disable colored output")

	return cmd
}

// applyScanFlags overrides config values with the flags the user set.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config, flags *scanFlags) {
	set := cmd.Flags().Changed

	if set(flagMode) {
		cfg.Scan.Mode = flags.mode
	}

	if set(flagWorkers) {
		cfg.Scan.Workers = flags.workers
	}

	if set(flagStrict) {
		cfg.Scan.Strict = flags.strict
	}

	if set(flagBufferSize) {
		cfg.Scan.BufferSize = flags.bufferSize
	}

	if set(flagFormat) {
		cfg.Output.Format = flags.format
	}

	if set(flagChart) {
		cfg.Output.Chart = flags.chart
	}

	if set(flagMetricsFile) {
		cfg.Telemetry.MetricsFile = flags.metricsFile
	}

	if set(flagNoColor) {
		cfg.Output.Color = !flags.noColor
	}
}

func runScan(cmd *cobra.Command, root *rootOptions, flags *scanFlags, sources []string) (err error) {
	cfg, err := config.LoadConfig(root.configPath)
	if err != nil {
		return err
	}

	applyScanFlags(cmd, cfg, flags)

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if !cfg.Output.Color {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	obsCfg, err := observabilityConfig(cfg, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.WithoutCancel(cmd.Context())))
	}()

	metrics, err := observability.NewScanMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	if len(sources) == 0 {
		sources = []string{scan.Stdin}
	}

	bufferSize, err := cfg.Scan.BufferBytes()
	if err != nil {
		return err
	}

	ctx, span := providers.Tracer.Start(cmd.Context(), spanScan, trace.WithAttributes(
		attribute.String("mode", cfg.Scan.Mode),
		attribute.Int("sources", len(sources)),
	))
	defer span.End()

	logger := providers.Logger.With(slog.String("mode", cfg.Scan.Mode))

	rep, err := scanReport(ctx, cfg.Scan.Mode, sources, scan.Options{
		Workers:    cfg.Scan.Workers,
		BufferSize: bufferSize,
		Strict:     cfg.Scan.Strict,
		Stdin:      cmd.InOrStdin(),
		Logger:     logger,
		Tracer:     providers.Tracer,
		Metrics:    metrics,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	err = report.Render(cmd.OutOrStdout(), rep, cfg.Output.Format)
	if err != nil {
		return err
	}

	if cfg.Output.Chart != "" {
		err = writeChart(cfg.Output.Chart, rep)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "chart written", slog.String("path", cfg.Output.Chart))
	}

	return nil
}

func observabilityConfig(cfg *config.Config, root *rootOptions, logOutput io.Writer) (observability.Config, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.MetricsFile = cfg.Telemetry.MetricsFile
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.LogOutput = logOutput

	switch {
	case root.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case root.quiet:
		obsCfg.LogLevel = slog.LevelError
	default:
		level, err := observability.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return observability.Config{}, err
		}

		obsCfg.LogLevel = level
	}

	return obsCfg, nil
}

// scanReport runs the scan with the parser and ordering for mode.
func scanReport(ctx context.Context, mode string, sources []string, opts scan.Options) (report.Report, error) {
	switch mode {
	case config.ModeInt:
		return collect(ctx, mode, sources, scan.ParseInt, minmax.New[int64], intValue, opts)
	case config.ModeString:
		return collect(ctx, mode, sources, scan.ParseString, minmax.New[string], nil, opts)
	default:
		return collect(ctx, mode, sources, scan.ParseFloat, minmax.New[float64], floatValue, opts)
	}
}

func collect[T any](
	ctx context.Context,
	mode string,
	sources []string,
	parse scan.Parser[T],
	newTracker func() *minmax.MinMax[T],
	toFloat func(T) (float64, bool),
	opts scan.Options,
) (report.Report, error) {
	res, err := scan.Run(ctx, sources, parse, newTracker, opts)
	if err != nil {
		return report.Report{}, err
	}

	return report.FromResult(res, mode, toFloat), nil
}

// floatValue keeps infinities out of charts; they have no bar height.
func floatValue(v float64) (float64, bool) { return v, !math.IsInf(v, 0) }

func intValue(v int64) (float64, bool) { return float64(v), true }

func writeChart(path string, rep report.Report) error {
	var buf bytes.Buffer

	err := report.RenderChart(&buf, rep)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, buf.Bytes(), chartFilePerm)
	if err != nil {
		return fmt.Errorf("write chart file: %w", err)
	}

	return nil
}
