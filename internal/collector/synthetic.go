package collector

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"PatternSentinel/internal/model"
)

// SyntheticFetcher generates repeatable series made of flat noise segments
// interleaved with parabolic cup-and-handle formations. Useful for demos and
// for exercising the scanner end to end without a data feed.
type SyntheticFetcher struct {
	Seed       int64
	Patterns   int                // formations per symbol
	CupBars    int                // bars in each generated cup
	HandleBars int                // bars in each generated handle
	Depth      float64            // cup depth in price units
	BasePrice  map[string]float64 // per-symbol base price; missing symbols use 100
	Start      time.Time
	Step       time.Duration
}

// NewSyntheticFetcher returns a generator with the defaults of the original dataset
// (30 formations of a 50 bar cup and 15 bar handle, depth 200, one-minute bars).
func NewSyntheticFetcher(seed int64) *SyntheticFetcher {
	return &SyntheticFetcher{
		Seed:       seed,
		Patterns:   30,
		CupBars:    50,
		HandleBars: 15,
		Depth:      200,
		BasePrice:  map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 4000},
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:       time.Minute,
	}
}

func (f *SyntheticFetcher) Name() string { return "synthetic" }

// Symbols lists the symbols with a configured base price.
func (f *SyntheticFetcher) Symbols() ([]string, error) {
	out := make([]string, 0, len(f.BasePrice))
	for s := range f.BasePrice {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// FetchBars generates the full series for symbol and returns its tail. The same
// seed and symbol always produce the same bars.
func (f *SyntheticFetcher) FetchBars(symbol string, limit int) ([]model.OHLCV, error) {
	return tail(f.Generate(symbol), limit), nil
}

// Generate builds the series for one symbol.
func (f *SyntheticFetcher) Generate(symbol string) []model.OHLCV {
	base, ok := f.BasePrice[symbol]
	if !ok {
		base = 100
	}
	rng := rand.New(rand.NewSource(f.Seed ^ hashSymbol(symbol)))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	var bars []model.OHLCV
	now := f.Start
	add := func(o, h, l, c, v float64) {
		bars = append(bars, model.OHLCV{Time: now, Open: o, High: h, Low: l, Close: c, Volume: v, Symbol: symbol})
		now = now.Add(f.Step)
	}

	for p := 0; p < f.Patterns; p++ {
		gap := 5 + rng.Intn(15)
		for i := 0; i < gap; i++ {
			o := base + uniform(-50, 50)
			c := o + uniform(-5, 5)
			add(o, math.Max(o, c)+uniform(0, 5), math.Min(o, c)-uniform(0, 5), c, float64(50+rng.Intn(150)))
		}
		for _, c := range f.formation(base) {
			o := c + uniform(-5, 5)
			add(o, math.Max(o, c)+uniform(0, 5), math.Min(o, c)-uniform(0, 5), c, float64(100+rng.Intn(400)))
		}
	}
	return bars
}

// formation returns the closes of one cup (a parabola over [-1, 1]) followed by a
// handle that retraces 40% of the depth. Depth is capped at a quarter of the base
// price so low-priced symbols stay positive.
func (f *SyntheticFetcher) formation(base float64) []float64 {
	depth := math.Min(f.Depth, base/4)
	closes := make([]float64, 0, f.CupBars+f.HandleBars)
	for i := 0; i < f.CupBars; i++ {
		t := -1.0
		if f.CupBars > 1 {
			t = -1 + 2*float64(i)/float64(f.CupBars-1)
		}
		closes = append(closes, base-depth+depth*t*t)
	}
	rim := closes[len(closes)-1]
	for i := 0; i < f.HandleBars; i++ {
		frac := 0.0
		if f.HandleBars > 1 {
			frac = float64(i) / float64(f.HandleBars-1)
		}
		closes = append(closes, rim-0.4*depth*frac)
	}
	return closes
}

func hashSymbol(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
