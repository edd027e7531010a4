package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"PatternSentinel/internal/model"
)

// RESTFetcher implements Fetcher against a bar service exposing
// /api/v1/bars/{interval}?symbol=&limit= and returning a JSON array of bars.
type RESTFetcher struct {
	BaseURL  string
	APIKey   string
	Interval string // "daily", "weekly", "1m", ...
	Client   *http.Client
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, interval, proxyURL string) *RESTFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if interval == "" {
		interval = "daily"
	}
	return &RESTFetcher{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Interval: interval,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape from the bar service. Timestamps may be unix
// seconds or milliseconds.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *RESTFetcher) endpoint(interval, symbol string, limit int) string {
	q := url.Values{}
	q.Set("symbol", symbol)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return f.BaseURL + "/api/v1/bars/" + url.PathEscape(interval) + "?" + q.Encode()
}

func (f *RESTFetcher) FetchBars(symbol string, limit int) ([]model.OHLCV, error) {
	bars, err := f.fetchBars(symbol, f.endpoint(f.Interval, symbol, limit))
	if err == nil || f.Interval != "weekly" {
		return bars, err
	}
	// Weekly endpoint missing: fetch enough daily bars and aggregate internally.
	daily, dailyErr := f.fetchBars(symbol, f.endpoint("daily", symbol, limit*7))
	if dailyErr != nil {
		return nil, fmt.Errorf("weekly fetch failed: %w; daily fallback also failed: %w", err, dailyErr)
	}
	return tail(aggregateDailyToWeekly(daily), limit), nil
}

func (f *RESTFetcher) fetchBars(symbol, endpoint string) ([]model.OHLCV, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, ErrUnknownSymbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch bars %s: status %d, body: %s", symbol, resp.StatusCode, string(body))
	}
	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	bars := make([]model.OHLCV, len(raw))
	for i, rb := range raw {
		bars[i] = model.OHLCV{
			Time:   unixTime(rb.Timestamp),
			Open:   rb.Open,
			High:   rb.High,
			Low:    rb.Low,
			Close:  rb.Close,
			Volume: rb.Volume,
			Symbol: symbol,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// unixTime reads ts as milliseconds when it is too large to be a plausible second count.
func unixTime(ts int64) time.Time {
	if ts > 1e12 || ts < -1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// aggregateDailyToWeekly converts daily bars into ISO-week bars.
func aggregateDailyToWeekly(daily []model.OHLCV) []model.OHLCV {
	if len(daily) == 0 {
		return nil
	}
	var weekly []model.OHLCV
	week := daily[0]
	wy, ww := week.Time.ISOWeek()

	for _, d := range daily[1:] {
		y, w := d.Time.ISOWeek()
		if y != wy || w != ww {
			weekly = append(weekly, week)
			week = d
			wy, ww = y, w
			continue
		}
		if d.High > week.High {
			week.High = d.High
		}
		if d.Low < week.Low {
			week.Low = d.Low
		}
		week.Close = d.Close
		week.Volume += d.Volume
	}
	return append(weekly, week)
}
