package calculator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
)

func bar(o, h, l, c float64) model.OHLCV {
	return model.OHLCV{Open: o, High: h, Low: l, Close: c}
}

func TestTrueRange(t *testing.T) {
	bars := []model.OHLCV{
		bar(10, 12, 9, 11),  // first bar: high-low = 3
		bar(11, 13, 10, 12), // max(3, |13-11|, |10-11|) = 3
		bar(15, 16, 15, 15), // gap up: max(1, |16-12|, |15-12|) = 4
		bar(8, 9, 7, 8),     // gap down: max(2, |9-15|, |7-15|) = 8
	}
	tr := TrueRange(bars)
	require.Len(t, tr, 4)
	assert.InDelta(t, 3.0, tr[0], 1e-9)
	assert.InDelta(t, 3.0, tr[1], 1e-9)
	assert.InDelta(t, 4.0, tr[2], 1e-9)
	assert.InDelta(t, 8.0, tr[3], 1e-9)
	assert.Nil(t, TrueRange(nil))
}

func TestRollingMean_PartialWindow(t *testing.T) {
	got, err := RollingMean([]float64{2, 4, 6, 8, 10}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3, 4, 6, 8}, got, 1e-9)

	_, err = RollingMean([]float64{1}, 0)
	assert.Error(t, err)
}

func TestATRSeries(t *testing.T) {
	bars := make([]model.OHLCV, 30)
	for i := range bars {
		bars[i] = bar(100, 101, 99, 100)
	}
	atr, err := NewATRSeries(bars, 14)
	require.NoError(t, err)
	assert.Equal(t, 14, atr.Period())
	assert.Equal(t, 30, atr.Len())

	_, ok := atr.At(0)
	assert.False(t, ok, "first bar has no prior close")

	v, ok := atr.At(5)
	require.True(t, ok, "partial window is defined")
	assert.InDelta(t, 2.0, v, 1e-9)

	v, ok = atr.At(29)
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)

	v, ok = atr.At(30)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestATRSeries_DefaultPeriod(t *testing.T) {
	atr, err := NewATRSeries([]model.OHLCV{bar(1, 2, 0, 1)}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultATRPeriod, atr.Period())
}

func TestHighLowAndMeans(t *testing.T) {
	bars := []model.OHLCV{bar(10, 12, 9, 11), bar(11, 15, 10, 12), bar(12, 13, 8, 9)}
	bars[0].Volume, bars[1].Volume, bars[2].Volume = 100, 200, 300

	h, l, err := HighLow(bars)
	require.NoError(t, err)
	assert.Equal(t, 15.0, h)
	assert.Equal(t, 8.0, l)

	m, err := MeanBarRange(bars)
	require.NoError(t, err)
	assert.InDelta(t, 13.0/3, m, 1e-9, "spans 3, 5 and 5")

	v, err := MeanVolume(bars)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, v, 1e-9)

	_, _, err = HighLow(nil)
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestFitParabola(t *testing.T) {
	t.Run("exact parabola", func(t *testing.T) {
		y := make([]float64, 31)
		for i := range y {
			x := (float64(i) - 15) / 15
			y[i] = 800 + 200*x*x
		}
		fit, err := FitParabola(y)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, fit.R2, 1e-9)
		assert.Greater(t, fit.C, 0.0)
		assert.InDelta(t, y[7], fit.At(7), 1e-6)
	})

	t.Run("straight line fits exactly", func(t *testing.T) {
		y := make([]float64, 31)
		for i := range y {
			y[i] = 1000 - 5*float64(i)
		}
		fit, err := FitParabola(y)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, fit.R2, 1e-6)
		assert.InDelta(t, 0.0, fit.C, 1e-6)
	})

	t.Run("zigzag has no curvature", func(t *testing.T) {
		y := make([]float64, 31)
		for i := range y {
			y[i] = 1000
			if i%2 == 1 {
				y[i] = 800
			}
		}
		fit, err := FitParabola(y)
		require.NoError(t, err)
		assert.Less(t, fit.R2, 0.1)
	})

	t.Run("zero variance", func(t *testing.T) {
		_, err := FitParabola([]float64{5, 5, 5, 5})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDegenerateFit)
		var nf *NumericFailure
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := FitParabola([]float64{1, 2})
		assert.ErrorIs(t, err, ErrDegenerateFit)
	})

	t.Run("nan input", func(t *testing.T) {
		_, err := FitParabola([]float64{1, math.NaN(), 3, 4})
		assert.ErrorIs(t, err, ErrDegenerateFit)
	})
}
