// Package fixture builds deterministic bar series with known cup-and-handle geometry.
package fixture

import (
	"time"

	"PatternSentinel/internal/calculator"
	"PatternSentinel/internal/model"
)

// Default fixture geometry and bar attributes.
const (
	// CupBars is the cup length of the standard series.
	CupBars = 31
	// HandleBars is the handle length of the standard series.
	HandleBars = 11
	// Symbol is stamped on every fixture bar.
	Symbol = "TEST"
	// Volume is the volume of every bar except a boosted breakout.
	Volume = 1000.0
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Cup returns n bars whose closes trace base-depth+depth*t^2 for t in [-1,1]. Every bar
// spans close±2, so both rims sit at base+2 and the lowest low is base-depth-2.
func Cup(n int, base, depth float64) []model.OHLCV {
	bars := make([]model.OHLCV, n)
	for i := range bars {
		t := 2*float64(i)/float64(n-1) - 1
		bars[i] = flat(base - depth + depth*t*t)
	}
	return bars
}

// Handle returns n bars drifting down linearly from `from` by step per bar.
func Handle(n int, from, step float64) []model.OHLCV {
	bars := make([]model.OHLCV, n)
	for i := range bars {
		bars[i] = flat(from - step*float64(i+1))
	}
	return bars
}

// WithBreakout appends one breakout bar priced at the last handle's max high plus
// multiple times the ATR at the breakout index. The breakout bar's own true range feeds
// that ATR, so the price is solved for directly.
func WithBreakout(bars []model.OHLCV, handleBars int, multiple float64, period int) []model.OHLCV {
	b := len(bars)
	tr := calculator.TrueRange(bars)
	sum := 0.0
	for i := b - period + 1; i < b; i++ {
		sum += tr[i]
	}
	handleHigh, _, _ := calculator.HighLow(bars[b-handleBars:])
	prevClose := bars[b-1].Close
	p := float64(period)
	gap := (multiple*sum/p + handleHigh - prevClose) / (1 - multiple/p)
	price := prevClose + gap
	out := append(append([]model.OHLCV(nil), bars...), model.OHLCV{
		Open: price, High: price, Low: price, Close: price, Volume: 2 * Volume,
	})
	return out
}

// Pad appends flat bars at the last close until the series holds total bars.
func Pad(bars []model.OHLCV, total int) []model.OHLCV {
	for len(bars) < total {
		last := bars[len(bars)-1].Close
		bars = append(bars, model.OHLCV{Open: last, High: last + 1, Low: last - 1, Close: last, Volume: Volume})
	}
	return bars
}

// Stamp assigns ascending one-minute timestamps and the fixture symbol.
func Stamp(bars []model.OHLCV) []model.OHLCV {
	for i := range bars {
		bars[i].Time = start.Add(time.Duration(i) * time.Minute)
		bars[i].Symbol = Symbol
	}
	return bars
}

// Standard is a 60-bar series: a depth-200 parabolic cup with matching rims, a shallow
// linear handle and a breakout priced multiple×ATR(14) above the handle high.
func Standard(multiple float64) []model.OHLCV {
	bars := append(Cup(CupBars, 1000, 200), Handle(HandleBars, 1000, 5)...)
	bars = WithBreakout(bars, HandleBars, multiple, calculator.DefaultATRPeriod)
	return Stamp(Pad(bars, 60))
}

func flat(c float64) model.OHLCV {
	return model.OHLCV{Open: c, High: c + 2, Low: c - 2, Close: c, Volume: Volume}
}
