package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"PatternSentinel/internal/model"
)

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	Client    *http.Client
	BaseURL   string
	Interval  string            // Yahoo interval, e.g. "1d", "1h", "1wk"
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(interval, proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if interval == "" {
		interval = "1d"
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL:  "https://query1.finance.yahoo.com",
		Interval: interval,
		SymbolMap: map[string]string{
			"SPX500":  "^GSPC",
			"SPX":     "^GSPC",
			"SP500":   "^GSPC",
			"BTCUSDT": "BTC-USD",
			"ETHUSDT": "ETH-USD",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// chartResponse is the subset of the v8 chart API used here. Prices are pointers
// because Yahoo reports bars without trades (holidays, halts) as nulls.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []quoteSeries `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type quoteSeries struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// bar returns the i-th bar, or false when any price is missing.
func (q quoteSeries) bar(i int) (model.OHLCV, bool) {
	at := func(s []*float64) (float64, bool) {
		if i >= len(s) || s[i] == nil {
			return 0, false
		}
		return *s[i], true
	}
	o, ok1 := at(q.Open)
	h, ok2 := at(q.High)
	l, ok3 := at(q.Low)
	c, ok4 := at(q.Close)
	if !(ok1 && ok2 && ok3 && ok4) {
		return model.OHLCV{}, false
	}
	v, _ := at(q.Volume)
	return model.OHLCV{Open: o, High: h, Low: l, Close: c, Volume: v}, true
}

func (f *YahooFetcher) fetchChart(symbol, interval, rng string) ([]model.OHLCV, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", rng)
	u := f.BaseURL + "/v8/finance/chart/" + url.PathEscape(f.yahooSymbol(symbol)) + "?" + q.Encode()

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrUnknownSymbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo %s: status %d, body: %s", symbol, resp.StatusCode, string(body))
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("yahoo decode %s: %w", symbol, err)
	}
	if e := chart.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo api error for %s: %s (%s)", symbol, e.Description, e.Code)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s: %w", symbol, ErrUnknownSymbol)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		b, ok := quote.bar(i)
		if !ok {
			continue
		}
		b.Time = time.Unix(ts, 0).UTC()
		b.Symbol = symbol
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// FetchBars picks the smallest Yahoo range that covers limit bars at the configured
// interval and trims the response to the most recent limit bars.
func (f *YahooFetcher) FetchBars(symbol string, limit int) ([]model.OHLCV, error) {
	bars, err := f.fetchChart(symbol, f.Interval, yahooRange(f.Interval, limit))
	if err != nil {
		return nil, err
	}
	return tail(bars, limit), nil
}

func yahooRange(interval string, limit int) string {
	switch interval {
	case "1m":
		return "5d"
	case "2m", "5m", "15m", "30m", "90m":
		return "1mo"
	case "60m", "1h":
		if limit > 0 && limit <= 7*24 {
			return "1mo"
		}
		return "2y"
	case "1wk":
		if limit > 0 && limit <= 26 {
			return "6mo"
		} else if limit > 0 && limit <= 52 {
			return "1y"
		}
		return "10y"
	}
	switch {
	case limit <= 0:
		return "max"
	case limit <= 30:
		return "1mo"
	case limit <= 90:
		return "3mo"
	case limit <= 180:
		return "6mo"
	case limit <= 365:
		return "1y"
	}
	return "2y"
}
