package chart

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"PatternSentinel/internal/model"
)

// SaveHTML writes an interactive candlestick chart of the pattern span with the
// close line overlaid and the breakout bar marked.
func (r *Renderer) SaveHTML(p model.ScoredPattern, bars []model.OHLCV) (string, error) {
	seg, err := span(p, bars)
	if err != nil {
		return "", err
	}

	x := make([]string, len(seg))
	candles := make([]opts.KlineData, len(seg))
	closes := make([]opts.LineData, len(seg))
	for i, b := range seg {
		x[i] = b.Time.UTC().Format("2006-01-02 15:04")
		// echarts candlestick order is open, close, low, high
		candles[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
		closes[i] = opts.LineData{Value: b.Close}
	}

	status := "valid"
	if !p.Valid {
		status = p.InvalidReason
	}

	k := charts.NewKLine()
	k.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title(p),
			Width:     "1000px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title(p), Subtitle: status}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Price", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
	)
	last := seg[len(seg)-1]
	k.SetXAxis(x).AddSeries(p.Symbol, candles,
		charts.WithMarkPointNameCoordItemOpts(opts.MarkPointNameCoordItem{
			Name:       "breakout",
			Coordinate: []interface{}{x[len(x)-1], last.High},
			Value:      fmt.Sprintf("%.2f", last.Close),
		}),
	)

	line := charts.NewLine()
	line.SetXAxis(x).AddSeries("close", closes)
	k.Overlap(line)

	out := r.path(p, "html")
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := k.Render(f); err != nil {
		f.Close()
		return "", err
	}
	return out, f.Close()
}
