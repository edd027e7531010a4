package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"PatternSentinel/internal/model"
)

// ReportColumns is the column order of the tabular report.
var ReportColumns = []string{
	"symbol", "cup_start", "cup_end", "handle_start", "handle_end",
	"cup_depth", "cup_duration", "handle_depth", "handle_duration", "breakout",
	"valid", "invalid_reason", "r2", "ml_valid", "confidence", "png_file", "html_file",
}

// CSVRecorder rewrites a report file with every pattern of the latest run.
type CSVRecorder struct {
	Path string
}

func NewCSVRecorder(path string) *CSVRecorder { return &CSVRecorder{Path: path} }

// RecordRun replaces the report. A run without patterns leaves an empty file.
func (r *CSVRecorder) RecordRun(run *model.ScanRun) error {
	if dir := filepath.Dir(r.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	tmp := r.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	var patterns []model.ScoredPattern
	for _, res := range run.Results {
		patterns = append(patterns, res.Patterns...)
	}
	if len(patterns) > 0 {
		err = WriteReport(f, patterns)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, r.Path)
}

func (r *CSVRecorder) Close() error { return nil }

// WriteReport writes patterns as CSV with a ReportColumns header. Absent values are empty cells.
func WriteReport(w io.Writer, patterns []model.ScoredPattern) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportColumns); err != nil {
		return err
	}
	for _, p := range patterns {
		mlValid, confidence := "", ""
		if p.ML != nil {
			mlValid = strconv.FormatBool(p.ML.Valid)
			confidence = formatFloat(&p.ML.Confidence)
		}
		rec := []string{
			p.Symbol,
			strconv.Itoa(p.CupStart), strconv.Itoa(p.CupEnd),
			strconv.Itoa(p.HandleStart), strconv.Itoa(p.HandleEnd),
			formatFloat(p.CupDepth), strconv.Itoa(p.CupDuration),
			formatFloat(p.HandleDepth), strconv.Itoa(p.HandleDuration),
			strconv.Itoa(p.Breakout),
			strconv.FormatBool(p.Valid), p.InvalidReason, formatFloat(p.R2),
			mlValid, confidence, p.PNGFile, p.HTMLFile,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).Round(6).String()
}

// ReadReport parses a report written by WriteReport. Pattern IDs are assigned by row.
func ReadReport(r io.Reader) ([]model.ScoredPattern, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"cup_depth", "cup_duration", "handle_depth", "handle_duration", "r2", "valid"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("report missing %q column", required)
		}
	}

	var out []model.ScoredPattern
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report line %d: %w", line, err)
		}
		row := reportRow{rec: rec, cols: cols}
		p := model.ScoredPattern{ID: len(out)}
		p.Symbol = row.str("symbol")
		p.CupStart = row.integer("cup_start")
		p.CupEnd = row.integer("cup_end")
		p.HandleStart = row.integer("handle_start")
		p.HandleEnd = row.integer("handle_end")
		p.Breakout = row.integer("breakout")
		p.CupDepth = row.number("cup_depth")
		p.CupDuration = row.integer("cup_duration")
		p.HandleDepth = row.number("handle_depth")
		p.HandleDuration = row.integer("handle_duration")
		p.InvalidReason = row.str("invalid_reason")
		p.R2 = row.number("r2")
		p.PNGFile = row.str("png_file")
		p.HTMLFile = row.str("html_file")
		if p.Valid, err = strconv.ParseBool(row.str("valid")); err != nil {
			return nil, fmt.Errorf("report line %d valid: %w", line, err)
		}
		if ml, err := strconv.ParseBool(row.str("ml_valid")); err == nil {
			conf := row.number("confidence")
			p.ML = &model.Classification{Valid: ml}
			if conf != nil {
				p.ML.Confidence = *conf
			}
		}
		if row.err != nil {
			return nil, fmt.Errorf("report line %d: %w", line, row.err)
		}
		out = append(out, p)
	}
	return out, nil
}

// reportRow reads named cells and keeps the first parse error.
type reportRow struct {
	rec  []string
	cols map[string]int
	err  error
}

func (r *reportRow) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *reportRow) integer(name string) int {
	s := r.str(name)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: %w", name, err)
	}
	return n
}

func (r *reportRow) number(name string) *float64 {
	s := r.str(name)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
	v, _ := d.Float64()
	return &v
}
