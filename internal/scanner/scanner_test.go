package scanner

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/fixture"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

func newScanner(g Geometry) *Scanner {
	return NewScanner(g, strategy.NewValidator(strategy.DefaultThresholds(), zerolog.Nop()), zerolog.Nop())
}

func knownReasons() map[string]bool {
	return map[string]bool{
		strategy.ReasonCupTooShallow:      true,
		strategy.ReasonCupDuration:        true,
		strategy.ReasonHandleDuration:     true,
		strategy.ReasonRimMismatch:        true,
		strategy.ReasonHandleAboveRim:     true,
		strategy.ReasonHandleTooDeep:      true,
		strategy.ReasonHandleBelowCup:     true,
		strategy.ReasonCupNotParabolic:    true,
		strategy.ReasonBreakoutWeakATR:    true,
		strategy.ReasonNoBreakout:         true,
		strategy.ReasonWeakBreakoutVolume: true,
	}
}

func TestWindows_Geometry(t *testing.T) {
	g := DefaultGeometry()
	assert.Equal(t, 43, g.MinBars())

	w := g.At(0)
	assert.Equal(t, model.Window{CupStart: 0, CupEnd: 30, HandleStart: 31, HandleEnd: 41, Breakout: 42}, w)

	assert.Empty(t, Windows(42, 10, g))
	assert.Len(t, Windows(43, 10, g), 1)
	assert.Len(t, Windows(100, 1000, g), 58)
}

func TestWindows_CapAndStride(t *testing.T) {
	for _, limit := range []int{-1, 0, 1, 5, 1000} {
		got := Windows(120, limit, DefaultGeometry())
		assert.LessOrEqual(t, len(got), max(limit, 0))
	}

	g := Geometry{CupBars: 31, HandleBars: 11, Stride: 5}
	got := Windows(100, 1000, g)
	require.Len(t, got, 12)
	for i, w := range got {
		assert.Equal(t, i*5, w.CupStart)
		assert.True(t, w.InBounds(100))
	}
}

func TestScan_ShortSeriesIsEmpty(t *testing.T) {
	s := newScanner(DefaultGeometry())
	for _, n := range []int{0, 3, 42} {
		bars := fixture.Stamp(fixture.Pad([]model.OHLCV{{Open: 1, High: 2, Low: 0, Close: 1}}, max(n, 1)))[:n]
		records := s.Scan("BTCUSDT", bars, 30)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	}
}

func TestScan_ValidScenario(t *testing.T) {
	bars := fixture.Standard(2)
	records := newScanner(DefaultGeometry()).Scan(fixture.Symbol, bars, 1)

	require.Len(t, records, 1)
	r := records[0]
	assert.True(t, r.Valid, r.InvalidReason)
	assert.Empty(t, r.InvalidReason)
	require.NotNil(t, r.R2)
	assert.GreaterOrEqual(t, *r.R2, 0.85)
	assert.Equal(t, 31, r.CupDuration)
	assert.Equal(t, 11, r.HandleDuration)
	assert.Equal(t, fixture.Symbol, r.Symbol)
}

func TestScan_WeakBreakoutScenario(t *testing.T) {
	records := newScanner(DefaultGeometry()).Scan(fixture.Symbol, fixture.Standard(0.5), 1)

	require.Len(t, records, 1)
	assert.False(t, records[0].Valid)
	assert.Equal(t, strategy.ReasonBreakoutWeakATR, records[0].InvalidReason)
}

func TestScan_RecordInvariants(t *testing.T) {
	bars := fixture.Standard(2)
	records := newScanner(DefaultGeometry()).Scan(fixture.Symbol, bars, 1000)
	require.Len(t, records, len(bars)-43+1)

	reasons := knownReasons()
	for _, r := range records {
		assert.True(t, r.Window.InBounds(len(bars)), "window %+v out of bounds", r.Window)
		if r.Valid {
			assert.Empty(t, r.InvalidReason)
			require.NotNil(t, r.R2)
			assert.GreaterOrEqual(t, *r.R2, 0.85)
		} else {
			assert.NotEmpty(t, r.InvalidReason)
			if !reasons[r.InvalidReason] {
				assert.Nil(t, r.R2, "unnamed reasons come from numeric failures: %q", r.InvalidReason)
			}
		}
	}
}

func TestScan_Deterministic(t *testing.T) {
	s := newScanner(DefaultGeometry())
	bars := fixture.Standard(2)
	assert.Equal(t, s.Scan("X", bars, 30), s.Scan("X", bars, 30))
}

func TestScan_CapRespected(t *testing.T) {
	s := newScanner(DefaultGeometry())
	bars := fixture.Standard(2)
	for _, limit := range []int{0, 1, 3, 17, 18, 500} {
		assert.LessOrEqual(t, len(s.Scan("X", bars, limit)), limit)
	}
}

func TestScanAll_PreservesOrder(t *testing.T) {
	series := []model.PriceSeries{
		{Symbol: "VALID", Bars: fixture.Standard(2)},
		{Symbol: "SHORT", Bars: fixture.Standard(2)[:10]},
		{Symbol: "WEAK", Bars: fixture.Standard(0.5)},
	}
	out := newScanner(DefaultGeometry()).ScanAll(series, 1)

	require.Len(t, out, 3)
	require.Len(t, out[0], 1)
	assert.True(t, out[0][0].Valid)
	assert.Equal(t, "VALID", out[0][0].Symbol)
	assert.Empty(t, out[1])
	require.Len(t, out[2], 1)
	assert.Equal(t, "WEAK", out[2][0].Symbol)
	assert.False(t, out[2][0].Valid)
}
