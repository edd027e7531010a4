// Package scanner slides the cup-and-handle template over bar series and records a
// verdict for every window.
package scanner

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"PatternSentinel/internal/calculator"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/strategy"
)

// Scanner enumerates windows and validates each one.
type Scanner struct {
	geometry  Geometry
	validator *strategy.Validator
	log       zerolog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(g Geometry, v *strategy.Validator, log zerolog.Logger) *Scanner {
	return &Scanner{
		geometry:  g.WithDefaults(),
		validator: v,
		log:       log.With().Str("component", "scanner").Logger(),
	}
}

// Geometry returns the window template in use.
func (s *Scanner) Geometry() Geometry { return s.geometry }

// Scan validates up to limit windows of one symbol's bars and returns one record per
// window, valid or not, in window order. Too few bars yield an empty result.
func (s *Scanner) Scan(symbol string, bars []model.OHLCV, limit int) []model.PatternRecord {
	windows := Windows(len(bars), limit, s.geometry)
	if len(windows) == 0 {
		s.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("series too short for a window")
		return []model.PatternRecord{}
	}

	atr, err := calculator.NewATRSeries(bars, s.validator.Thresholds().ATRPeriod)
	if err != nil {
		// Only a non-positive period fails, and thresholds always carry a default.
		s.log.Error().Err(err).Str("symbol", symbol).Msg("build ATR series")
	}

	records := make([]model.PatternRecord, 0, len(windows))
	for _, w := range windows {
		records = append(records, s.evaluate(symbol, bars, w, atr))
	}
	return records
}

func (s *Scanner) evaluate(symbol string, bars []model.OHLCV, w model.Window, atr *calculator.ATRSeries) model.PatternRecord {
	cup := bars[w.CupStart : w.CupEnd+1]
	handle := bars[w.HandleStart : w.HandleEnd+1]
	verdict := s.validator.Validate(strategy.Input{
		Cup:         cup,
		Handle:      handle,
		Breakout:    bars[w.Breakout],
		BreakoutIdx: w.Breakout,
		ATR:         atr,
	})
	return model.PatternRecord{
		Symbol:         symbol,
		Window:         w,
		CupDepth:       verdict.Metrics.CupDepth,
		CupDuration:    len(cup),
		HandleDepth:    verdict.Metrics.HandleDepth,
		HandleDuration: len(handle),
		Valid:          verdict.Valid,
		InvalidReason:  verdict.Reason,
		R2:             verdict.Metrics.R2,
	}
}

// ScanAll scans every series concurrently, one goroutine per symbol, and returns the
// records in input order. Symbols share no state, so no locking is needed.
func (s *Scanner) ScanAll(series []model.PriceSeries, limit int) [][]model.PatternRecord {
	out := make([][]model.PatternRecord, len(series))
	var g errgroup.Group
	for i := range series {
		g.Go(func() error {
			out[i] = s.Scan(series[i].Symbol, series[i].Bars, limit)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
