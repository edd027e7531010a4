package collector

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PatternSentinel/internal/model"
)

// CSVFetcher reads bars from a CSV file with a header row naming at least
// timestamp, open, high, low and close. Optional volume and symbol columns are honoured;
// without a symbol column every row belongs to whichever symbol is requested.
type CSVFetcher struct {
	Path string

	once   sync.Once
	bySym  map[string][]model.OHLCV
	all    []model.OHLCV
	hasSym bool
	err    error
}

// NewCSVFetcher creates a fetcher over the file at path.
func NewCSVFetcher(path string) *CSVFetcher {
	return &CSVFetcher{Path: path}
}

func (f *CSVFetcher) Name() string { return "csv" }

func (f *CSVFetcher) FetchBars(symbol string, limit int) ([]model.OHLCV, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	if !f.hasSym {
		bars := make([]model.OHLCV, len(f.all))
		copy(bars, f.all)
		for i := range bars {
			bars[i].Symbol = symbol
		}
		return tail(bars, limit), nil
	}
	bars, ok := f.bySym[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in %s", ErrUnknownSymbol, symbol, f.Path)
	}
	return tail(append([]model.OHLCV(nil), bars...), limit), nil
}

// Symbols lists the symbols present in the file, sorted.
func (f *CSVFetcher) Symbols() ([]string, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.bySym))
	for s := range f.bySym {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (f *CSVFetcher) load() error {
	f.once.Do(func() {
		file, err := os.Open(f.Path)
		if err != nil {
			f.err = fmt.Errorf("open csv: %w", err)
			return
		}
		defer file.Close()
		f.all, f.hasSym, f.err = ParseCSV(file)
		f.bySym = make(map[string][]model.OHLCV)
		for _, b := range f.all {
			f.bySym[b.Symbol] = append(f.bySym[b.Symbol], b)
		}
	})
	return f.err
}

// ParseCSV decodes bars from r. It reports whether the input carried a symbol column.
func ParseCSV(r io.Reader) ([]model.OHLCV, bool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, false, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, false, fmt.Errorf("csv header missing %q column", required)
		}
	}
	symCol, hasSym := cols["symbol"]
	volCol, hasVol := cols["volume"]

	var bars []model.OHLCV
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("csv line %d: %w", line, err)
		}
		field := func(col int) string {
			if col < len(rec) {
				return strings.TrimSpace(rec[col])
			}
			return ""
		}

		ts, err := parseTimestamp(field(cols["timestamp"]))
		if err != nil {
			return nil, false, fmt.Errorf("csv line %d: %w", line, err)
		}
		var prices [4]float64
		for i, name := range []string{"open", "high", "low", "close"} {
			if prices[i], err = parseNumber(field(cols[name])); err != nil {
				return nil, false, fmt.Errorf("csv line %d %s: %w", line, name, err)
			}
		}
		b := model.OHLCV{Time: ts, Open: prices[0], High: prices[1], Low: prices[2], Close: prices[3]}
		if hasVol && field(volCol) != "" {
			if b.Volume, err = parseNumber(field(volCol)); err != nil {
				return nil, false, fmt.Errorf("csv line %d volume: %w", line, err)
			}
		}
		if hasSym {
			b.Symbol = field(symCol)
		}
		bars = append(bars, b)
	}
	return bars, hasSym, nil
}

func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	v, _ := d.Float64()
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp accepts the layouts above or unix seconds / milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

// WriteCSV writes bars in the layout ParseCSV reads, symbol column included.
func WriteCSV(w io.Writer, bars []model.OHLCV) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format("2006-01-02 15:04:05"),
			decimal.NewFromFloat(b.Open).String(),
			decimal.NewFromFloat(b.High).String(),
			decimal.NewFromFloat(b.Low).String(),
			decimal.NewFromFloat(b.Close).String(),
			decimal.NewFromFloat(b.Volume).String(),
			b.Symbol,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
