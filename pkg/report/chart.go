package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartTitle  = "Sample bounds per source"
	chartWidth  = "1200px"
	chartHeight = "500px"
	xAxisRotate = 30
	minColor    = "#5470c6"
	maxColor    = "#ee6666"
)

// ErrNotNumeric is returned when no source has finite numeric bounds to plot.
var ErrNotNumeric = errors.New("report has no finite numeric bounds to chart")

// RenderChart writes an HTML page with a bar chart of each source's minimum
// and maximum. Sources without samples or with a non-finite bound are left
// out.
func RenderChart(w io.Writer, rep Report) error {
	labels := make([]string, 0, len(rep.Sources))
	mins := make([]opts.BarData, 0, len(rep.Sources))
	maxs := make([]opts.BarData, 0, len(rep.Sources))

	for _, row := range rep.Sources {
		if !finite(row.MinValue) || !finite(row.MaxValue) {
			continue
		}

		labels = append(labels, row.Source)
		mins = append(mins, opts.BarData{Value: *row.MinValue})
		maxs = append(maxs, opts.BarData{Value: *row.MaxValue})
	}

	if len(labels) == 0 {
		return ErrNotNumeric
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: chartTitle,
			Subtitle: fmt.Sprintf("%s samples across %d sources, overall %s",
				humanize.Comma(int64(rep.Total.Count)), len(labels), rep.Total.Range),
			Left: "center",
		}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "10%", Left: "center"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate}}),
	)

	bar.SetXAxis(labels).
		AddSeries("min", mins, charts.WithItemStyleOpts(opts.ItemStyle{Color: minColor})).
		AddSeries("max", maxs, charts.WithItemStyleOpts(opts.ItemStyle{Color: maxColor}))

	err := bar.Render(w)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	return nil
}

func finite(v *float64) bool {
	return v != nil && !math.IsInf(*v, 0) && !math.IsNaN(*v)
}
