package calculator

import (
	"math"

	"github.com/markcheno/go-talib"

	"PatternSentinel/internal/model"
)

// DefaultATRPeriod is the trailing window of the average true range.
const DefaultATRPeriod = 14

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// The first bar has no prior close, so its true range is high-low.
func TrueRange(bars []model.OHLCV) []float64 {
	if len(bars) == 0 {
		return nil
	}
	tr := talib.TRange(model.Highs(bars), model.Lows(bars), model.Closes(bars))
	tr[0] = bars[0].High - bars[0].Low
	return tr
}

// ATRSeries is the rolling average true range of one symbol's full bar series.
// It is immutable once built and safe for concurrent readers.
type ATRSeries struct {
	period int
	values []float64
}

// NewATRSeries computes the trailing mean of true range over bars. Early indices use a
// partial window of the bars available so far.
func NewATRSeries(bars []model.OHLCV, period int) (*ATRSeries, error) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	values, err := RollingMean(TrueRange(bars), period)
	if err != nil {
		return nil, err
	}
	return &ATRSeries{period: period, values: values}, nil
}

// Period returns the lookback the series was built with.
func (s *ATRSeries) Period() int { return s.period }

// Len returns the number of bars covered.
func (s *ATRSeries) Len() int { return len(s.values) }

// At returns the ATR at bar index i. ok is false, and the value NaN, when i lies outside
// the series or is the first bar, which has no prior close to measure against.
func (s *ATRSeries) At(i int) (float64, bool) {
	if s == nil || i <= 0 || i >= len(s.values) {
		return math.NaN(), false
	}
	v := s.values[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}
