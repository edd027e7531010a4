package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/model"
)

// ErrNoSeries is returned when no configured symbol produced any bars.
var ErrNoSeries = errors.New("no series collected")

// Collector fetches every configured symbol and hands the scanner clean,
// chronologically ordered series.
type Collector struct {
	Fetcher Fetcher
	Symbols []string // empty means every symbol a SymbolLister source reports
	Limit   int      // bars per symbol, <= 0 for all
	log     zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbols []string, limit int, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher: fetcher,
		Symbols: symbols,
		Limit:   limit,
		log:     log.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
	}
}

// Collect fetches market data for each symbol. A symbol whose fetch fails is
// logged and skipped; the call only fails when nothing at all was collected.
func (c *Collector) Collect(ctx context.Context) ([]model.PriceSeries, error) {
	symbols, err := c.symbols()
	if err != nil {
		return nil, err
	}

	out := make([]model.PriceSeries, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		bars, err := c.Fetcher.FetchBars(sym, c.Limit)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym).Msg("fetch failed, skipping symbol")
			continue
		}
		clean, dropped := Normalize(sym, bars)
		if dropped > 0 {
			c.log.Warn().Str("symbol", sym).Int("dropped", dropped).Msg("dropped malformed or duplicate bars")
		}
		c.log.Debug().Str("symbol", sym).Int("bars", len(clean)).Msg("collected")
		out = append(out, model.PriceSeries{Symbol: sym, Bars: clean, FetchedAt: time.Now()})
	}
	if len(out) == 0 && len(symbols) > 0 {
		return nil, fmt.Errorf("%w from %s (%d symbols tried)", ErrNoSeries, c.Fetcher.Name(), len(symbols))
	}
	return out, nil
}

func (c *Collector) symbols() ([]string, error) {
	if len(c.Symbols) > 0 {
		return c.Symbols, nil
	}
	lister, ok := c.Fetcher.(SymbolLister)
	if !ok {
		return nil, fmt.Errorf("no symbols configured and %s cannot list its symbols", c.Fetcher.Name())
	}
	syms, err := lister.Symbols()
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return syms, nil
}

// Normalize sorts bars by time, keeps the first bar of any duplicated timestamp,
// and drops bars with non-finite prices or high below low. It stamps the symbol on
// every bar and reports how many were dropped.
func Normalize(symbol string, bars []model.OHLCV) ([]model.OHLCV, int) {
	sorted := make([]model.OHLCV, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := sorted[:0]
	for _, b := range sorted {
		if !wellFormed(b) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			continue
		}
		b.Symbol = symbol
		out = append(out, b)
	}
	return out, len(bars) - len(out)
}

func wellFormed(b model.OHLCV) bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.High >= b.Low && b.Volume >= 0
}
