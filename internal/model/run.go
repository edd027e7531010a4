package model

import "time"

// Classification is the machine-learned re-scorer's opinion on a record.
type Classification struct {
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
}

// ScoredPattern is a record enriched by the optional downstream collaborators.
type ScoredPattern struct {
	PatternRecord
	ID       int             `json:"id"`
	ML       *Classification `json:"ml,omitempty"`
	PNGFile  string          `json:"png_file,omitempty"`
	HTMLFile string          `json:"html_file,omitempty"`
}

// SymbolResult groups the scored patterns of one symbol.
type SymbolResult struct {
	Symbol   string          `json:"symbol"`
	Bars     int             `json:"bars"`
	Patterns []ScoredPattern `json:"patterns"`
}

// ValidCount returns the number of rule-valid patterns.
func (s SymbolResult) ValidCount() int {
	n := 0
	for _, p := range s.Patterns {
		if p.Valid {
			n++
		}
	}
	return n
}

// ScanRun is one complete pass over every configured symbol.
type ScanRun struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SymbolResult `json:"results"`
}

// Totals returns the number of scanned windows and valid patterns across all symbols.
func (r *ScanRun) Totals() (windows, valid int) {
	for _, res := range r.Results {
		windows += len(res.Patterns)
		valid += res.ValidCount()
	}
	return windows, valid
}
