package scanner

import "PatternSentinel/internal/model"

// Geometry is the fixed cup-and-handle template slid across a series.
type Geometry struct {
	CupBars    int `yaml:"cup_bars"`
	HandleBars int `yaml:"handle_bars"`
	Stride     int `yaml:"stride"`
}

// DefaultGeometry is a 31-bar cup, an 11-bar handle and a one-bar stride.
func DefaultGeometry() Geometry {
	return Geometry{CupBars: 31, HandleBars: 11, Stride: 1}
}

// WithDefaults replaces non-positive fields with the default geometry.
func (g Geometry) WithDefaults() Geometry {
	d := DefaultGeometry()
	if g.CupBars <= 1 {
		g.CupBars = d.CupBars
	}
	if g.HandleBars <= 0 {
		g.HandleBars = d.HandleBars
	}
	if g.Stride <= 0 {
		g.Stride = d.Stride
	}
	return g
}

// MinBars is the shortest series holding one full window plus its breakout bar.
func (g Geometry) MinBars() int {
	return g.CupBars + g.HandleBars + 1
}

// At returns the window whose cup starts at offset.
func (g Geometry) At(offset int) model.Window {
	cupEnd := offset + g.CupBars - 1
	handleEnd := cupEnd + g.HandleBars
	return model.Window{
		CupStart:    offset,
		CupEnd:      cupEnd,
		HandleStart: cupEnd + 1,
		HandleEnd:   handleEnd,
		Breakout:    handleEnd + 1,
	}
}

// Windows enumerates in-bounds windows over a series of n bars, starting at offset 0 and
// advancing by the stride, until the series is exhausted or limit windows were produced.
func Windows(n, limit int, g Geometry) []model.Window {
	g = g.WithDefaults()
	if limit <= 0 || n < g.MinBars() {
		return nil
	}
	var out []model.Window
	for offset := 0; len(out) < limit; offset += g.Stride {
		w := g.At(offset)
		if !w.InBounds(n) {
			break
		}
		out = append(out, w)
	}
	return out
}
