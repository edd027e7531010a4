package calculator

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"PatternSentinel/internal/model"
)

// ErrNoBars is returned when a calculation receives an empty bar slice.
var ErrNoBars = errors.New("no bars provided")

// HighLow returns the highest high and lowest low across bars.
func HighLow(bars []model.OHLCV) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, ErrNoBars
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// MeanBarRange returns the average high-low span of bars.
func MeanBarRange(bars []model.OHLCV) (float64, error) {
	if len(bars) == 0 {
		return 0, ErrNoBars
	}
	spans := make([]float64, len(bars))
	for i, b := range bars {
		spans[i] = b.High - b.Low
	}
	return stat.Mean(spans, nil), nil
}

// MeanVolume returns the average traded volume of bars.
func MeanVolume(bars []model.OHLCV) (float64, error) {
	if len(bars) == 0 {
		return 0, ErrNoBars
	}
	return stat.Mean(model.Volumes(bars), nil), nil
}
