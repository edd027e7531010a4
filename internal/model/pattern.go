package model

// Window holds the bar offsets of one cup-and-handle candidate inside a symbol's series.
type Window struct {
	CupStart    int `json:"cup_start"`
	CupEnd      int `json:"cup_end"`
	HandleStart int `json:"handle_start"`
	HandleEnd   int `json:"handle_end"`
	Breakout    int `json:"breakout"`
}

// InBounds reports whether the window is well ordered and fits a series of n bars,
// breakout bar included.
func (w Window) InBounds(n int) bool {
	return w.CupStart >= 0 &&
		w.CupStart < w.CupEnd &&
		w.CupEnd < w.HandleStart &&
		w.HandleStart <= w.HandleEnd &&
		w.HandleEnd < w.Breakout &&
		w.Breakout < n
}

// PatternRecord is the verdict for one scanned window. Nil metric pointers mean the
// value was never computed because an earlier check rejected the window.
type PatternRecord struct {
	Symbol string `json:"symbol"`
	Window
	CupDepth       *float64 `json:"cup_depth"`
	CupDuration    int      `json:"cup_duration"`
	HandleDepth    *float64 `json:"handle_depth"`
	HandleDuration int      `json:"handle_duration"`
	Valid          bool     `json:"valid"`
	InvalidReason  string   `json:"invalid_reason"`
	R2             *float64 `json:"r2"`
}

// Features returns the classifier inputs
// {cup_depth, cup_duration, handle_depth, handle_duration, r2}; missing values are zero.
func (r PatternRecord) Features() []float64 {
	return []float64{
		valueOrZero(r.CupDepth),
		float64(r.CupDuration),
		valueOrZero(r.HandleDepth),
		float64(r.HandleDuration),
		valueOrZero(r.R2),
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
