package collector

import (
	"errors"

	"PatternSentinel/internal/model"
)

// ErrUnknownSymbol is returned when a source holds no bars for the requested symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchBars returns up to limit of the most recent bars for symbol; limit <= 0
	// returns everything the source holds.
	FetchBars(symbol string, limit int) ([]model.OHLCV, error)
	Name() string
}

// SymbolLister is implemented by sources that know which symbols they hold.
type SymbolLister interface {
	Symbols() ([]string, error)
}

func tail(bars []model.OHLCV, limit int) []model.OHLCV {
	if limit > 0 && len(bars) > limit {
		return bars[len(bars)-limit:]
	}
	return bars
}
