package chart

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"PatternSentinel/internal/calculator"
	"PatternSentinel/internal/model"
)

var (
	priceColor    = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	cupColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	handleColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	fitColor      = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	breakoutColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// SavePNG draws closes over the pattern span with the cup, the handle, the fitted
// parabola and the breakout bar highlighted.
func (r *Renderer) SavePNG(p model.ScoredPattern, bars []model.OHLCV) (string, error) {
	seg, err := span(p, bars)
	if err != nil {
		return "", err
	}

	pl := plot.New()
	pl.Title.Text = title(p)
	pl.X.Label.Text = "Time"
	pl.Y.Label.Text = "Price"
	pl.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	pl.Add(plotter.NewGrid())

	xy := func(from, to int) plotter.XYs {
		pts := make(plotter.XYs, 0, to-from+1)
		for i := from; i <= to; i++ {
			b := bars[i]
			pts = append(pts, plotter.XY{X: float64(b.Time.Unix()), Y: b.Close})
		}
		return pts
	}

	price, err := plotter.NewLine(xy(p.CupStart, p.Breakout))
	if err != nil {
		return "", err
	}
	price.Color = priceColor
	price.Width = vg.Points(1)

	cup, err := plotter.NewLine(xy(p.CupStart, p.CupEnd))
	if err != nil {
		return "", err
	}
	cup.Color = cupColor
	cup.Width = vg.Points(2)

	handle, err := plotter.NewLine(xy(p.HandleStart, p.HandleEnd))
	if err != nil {
		return "", err
	}
	handle.Color = handleColor
	handle.Width = vg.Points(2)

	breakout, err := plotter.NewScatter(xy(p.Breakout, p.Breakout))
	if err != nil {
		return "", err
	}
	breakout.Shape = draw.TriangleGlyph{}
	breakout.Color = breakoutColor
	breakout.Radius = vg.Points(5)

	pl.Add(price, cup, handle, breakout)
	pl.Legend.Add("close", price)
	pl.Legend.Add("cup", cup)
	pl.Legend.Add("handle", handle)
	pl.Legend.Add("breakout", breakout)

	if fit, err := calculator.FitParabola(model.Closes(seg[:p.CupEnd-p.CupStart+1])); err == nil {
		pts := xy(p.CupStart, p.CupEnd)
		for i := range pts {
			pts[i].Y = fit.At(float64(i))
		}
		if curve, err := plotter.NewLine(pts); err == nil {
			curve.Color = fitColor
			curve.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			pl.Add(curve)
			pl.Legend.Add("parabola fit", curve)
		}
	}
	pl.Legend.Top = true

	out := r.path(p, "png")
	if err := pl.Save(10*vg.Inch, 6*vg.Inch, out); err != nil {
		return "", err
	}
	return out, nil
}
