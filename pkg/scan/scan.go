// Package scan reads newline-separated samples from files or stdin into
// min/max trackers. Each source gets its own tracker, sources are scanned
// concurrently, and the per-source trackers are merged into a total once all
// workers finish.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/commute/pkg/alg/commute"
	"github.com/Sumatoshi-tech/commute/pkg/alg/minmax"
	"github.com/Sumatoshi-tech/commute/pkg/observability"
)

const (
	// Stdin is the source name that reads standard input.
	Stdin = "-"

	// DefaultBufferSize is the longest line accepted when Options.BufferSize is unset.
	DefaultBufferSize = 1 << 20

	lz4Suffix      = ".lz4"
	commentPrefix  = "#"
	initialBufSize = 64 << 10
	spanSource     = "scan.source"
	attrSource     = "source"
)

var (
	// ErrNoSources is returned when Run is called without sources.
	ErrNoSources = errors.New("scan: no sources given")

	// ErrParse is returned in strict mode for a line that does not parse.
	ErrParse = errors.New("scan: unparsable sample")
)

// Options control a scan. The zero value is usable.
type Options struct {
	// Workers bounds the number of sources scanned at once.
	// Zero or less means runtime.NumCPU().
	Workers int

	// BufferSize is the longest accepted line in bytes.
	BufferSize int

	// Strict fails the scan on the first unparsable line instead of skipping it.
	Strict bool

	// Stdin is read for the "-" source. Nil means os.Stdin.
	Stdin io.Reader

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.ScanMetrics
}

// Shard is the partial result for one source.
type Shard[T any] struct {
	Source  string
	Tracker *minmax.MinMax[T]
	Skipped int
}

// Result holds per-source partials and their merged total.
type Result[T any] struct {
	Shards  []Shard[T]
	Total   *minmax.MinMax[T]
	Skipped int
}

// Run scans every source with parse and returns the per-source trackers and
// their total. newTracker supplies empty trackers and fixes their ordering.
// Shards are merged in source order, so ties resolve the same way on every run.
func Run[T any](
	ctx context.Context,
	sources []string,
	parse Parser[T],
	newTracker func() *minmax.MinMax[T],
	opts Options,
) (*Result[T], error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	opts = opts.withDefaults()

	shards, err := commute.MapShards(ctx, sources, opts.Workers,
		func(ctx context.Context, source string) (Shard[T], error) {
			return scanSource(ctx, source, parse, newTracker(), opts)
		})
	if err != nil {
		return nil, err
	}

	res := &Result[T]{Shards: shards}

	res.Total = commute.MergeInto(newTracker(), func(yield func(*minmax.MinMax[T]) bool) {
		for _, shard := range shards {
			if !yield(shard.Tracker) {
				return
			}
		}
	})

	for _, shard := range shards {
		res.Skipped += shard.Skipped
	}

	opts.Metrics.RecordMerges(ctx, len(shards))
	opts.Logger.InfoContext(ctx, "scan finished",
		slog.Int("sources", len(shards)),
		slog.Int("samples", res.Total.Len()),
		slog.Int("skipped", res.Skipped),
	)

	return res, nil
}

func (opts Options) withDefaults() Options {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return opts
}

func scanSource[T any](
	ctx context.Context,
	source string,
	parse Parser[T],
	tracker *minmax.MinMax[T],
	opts Options,
) (Shard[T], error) {
	ctx, span := opts.Tracer.Start(ctx, spanSource, trace.WithAttributes(attribute.String(attrSource, source)))
	defer span.End()

	start := time.Now()
	shard := Shard[T]{Source: source, Tracker: tracker}

	err := readSource(ctx, source, opts, func(lineNo int, line string) error {
		sample, parseErr := parse(line)
		if parseErr == nil {
			tracker.Add(sample)

			return nil
		}

		if opts.Strict {
			return fmt.Errorf("%w: %s:%d: %w", ErrParse, source, lineNo, parseErr)
		}

		shard.Skipped++
		opts.Logger.DebugContext(ctx, "skipping sample",
			slog.String(attrSource, source),
			slog.Int("line", lineNo),
			slog.String("error", parseErr.Error()),
		)

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		opts.Metrics.RecordSource(ctx, observability.StatusError, 0, 0, time.Since(start))

		return Shard[T]{}, err
	}

	span.SetAttributes(
		attribute.Int("samples", tracker.Len()),
		attribute.Int("skipped", shard.Skipped),
	)
	opts.Metrics.RecordSource(ctx, observability.StatusOK, tracker.Len(), shard.Skipped, time.Since(start))
	opts.Logger.DebugContext(ctx, "source scanned",
		slog.String(attrSource, source),
		slog.Int("samples", tracker.Len()),
		slog.Int("skipped", shard.Skipped),
		slog.String("range", tracker.String()),
	)

	return shard, nil
}

// readSource calls fn for every trimmed line that is neither blank nor a comment.
func readSource(ctx context.Context, source string, opts Options, fn func(lineNo int, line string) error) error {
	reader, err := openSource(source, opts.Stdin)
	if err != nil {
		return err
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, min(initialBufSize, opts.BufferSize)), opts.BufferSize)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return ctxErr
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}

		fnErr := fn(lineNo, line)
		if fnErr != nil {
			return fnErr
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return fmt.Errorf("read %s: %w", source, scanErr)
	}

	return nil
}

type sourceReader struct {
	io.Reader
	io.Closer
}

// openSource opens a file, or stdin for "-", decoding LZ4 frames when the
// name ends in ".lz4".
func openSource(source string, stdin io.Reader) (io.ReadCloser, error) {
	var rc io.ReadCloser

	if source == Stdin {
		rc = io.NopCloser(stdin)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}

		rc = f
	}

	if strings.HasSuffix(source, lz4Suffix) {
		return sourceReader{Reader: lz4.NewReader(rc), Closer: rc}, nil
	}

	return rc, nil
}
