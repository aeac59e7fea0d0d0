// Package report renders scan results as tables, plain text, YAML, or an
// HTML bar chart of per-source bounds.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/commute/pkg/alg/minmax"
	"github.com/Sumatoshi-tech/commute/pkg/scan"
)

// Output formats.
const (
	FormatTable = "table"
	FormatText  = "text"
	FormatYAML  = "yaml"
)

const (
	totalSource = "total"
	yamlIndent  = 2
)

// ErrUnknownFormat is returned for an output format Render does not support.
var ErrUnknownFormat = errors.New("unknown output format")

// Row describes one tracker.
type Row struct {
	Source string `yaml:"source"`
	Count  int    `yaml:"count"`
	Min    string `yaml:"min,omitempty"`
	Max    string `yaml:"max,omitempty"`
	Range  string `yaml:"range"`

	// MinValue and MaxValue are set for numeric samples only.
	MinValue *float64 `yaml:"-"`
	MaxValue *float64 `yaml:"-"`
}

// Report is the rendered form of a scan result.
type Report struct {
	Mode    string `yaml:"mode"`
	Sources []Row  `yaml:"sources"`
	Total   Row    `yaml:"total"`
	Skipped int    `yaml:"skipped"`
}

// FromResult builds a Report. toFloat may be nil for samples without a
// numeric value; it is only needed for charts.
func FromResult[T any](res *scan.Result[T], mode string, toFloat func(T) (float64, bool)) Report {
	rep := Report{
		Mode:    mode,
		Sources: make([]Row, 0, len(res.Shards)),
		Total:   buildRow(totalSource, res.Total, toFloat),
		Skipped: res.Skipped,
	}

	for _, shard := range res.Shards {
		rep.Sources = append(rep.Sources, buildRow(shard.Source, shard.Tracker, toFloat))
	}

	return rep
}

func buildRow[T any](source string, tracker *minmax.MinMax[T], toFloat func(T) (float64, bool)) Row {
	row := Row{
		Source: source,
		Count:  tracker.Len(),
		Range:  tracker.String(),
	}

	lo, hi, ok := tracker.Bounds()
	if !ok {
		return row
	}

	row.Min = fmt.Sprint(lo)
	row.Max = fmt.Sprint(hi)

	if toFloat == nil {
		return row
	}

	if v, ok := toFloat(lo); ok {
		row.MinValue = &v
	}

	if v, ok := toFloat(hi); ok {
		row.MaxValue = &v
	}

	return row
}

// Render writes rep to w in the given format.
func Render(w io.Writer, rep Report, format string) error {
	switch format {
	case FormatTable:
		return renderTable(w, rep)
	case FormatText:
		return renderText(w, rep)
	case FormatYAML:
		return renderYAML(w, rep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderTable(w io.Writer, rep Report) error {
	header := color.New(color.FgCyan, color.Bold)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(table.Row{
		header.Sprint("Source"),
		header.Sprint("Samples"),
		header.Sprint("Min"),
		header.Sprint("Max"),
	})

	for _, row := range rep.Sources {
		tbl.AppendRow(tableRow(row))
	}

	tbl.AppendFooter(tableRow(rep.Total))

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	if rep.Skipped > 0 {
		_, err = fmt.Fprintf(w, "%s unparsable lines skipped\n", humanize.Comma(int64(rep.Skipped)))
		if err != nil {
			return fmt.Errorf("write table: %w", err)
		}
	}

	return nil
}

func tableRow(row Row) table.Row {
	lo, hi := row.Min, row.Max
	if row.Count == 0 {
		lo, hi = row.Range, row.Range
	}

	return table.Row{row.Source, humanize.Comma(int64(row.Count)), lo, hi}
}

func renderText(w io.Writer, rep Report) error {
	var sb strings.Builder

	for _, row := range rep.Sources {
		fmt.Fprintf(&sb, "%s %d %s\n", row.Source, row.Count, row.Range)
	}

	fmt.Fprintf(&sb, "%s %d %s\n", rep.Total.Source, rep.Total.Count, rep.Total.Range)

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write text: %w", err)
	}

	return nil
}

func renderYAML(w io.Writer, rep Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(yamlIndent)

	err := enc.Encode(rep)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return nil
}
