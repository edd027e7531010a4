package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/chart"
	"PatternSentinel/internal/fixture"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scanner"
	"PatternSentinel/internal/strategy"
)

type staticSource struct {
	series []model.PriceSeries
	err    error
}

func (s staticSource) Collect(context.Context) ([]model.PriceSeries, error) { return s.series, s.err }

type fixedScorer struct{}

func (fixedScorer) Classify(rec model.PatternRecord) *model.Classification {
	return &model.Classification{Valid: rec.Valid, Confidence: 0.75}
}

type memRecorder struct {
	mu   sync.Mutex
	runs []*model.ScanRun
	err  error
}

func (m *memRecorder) RecordRun(run *model.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return m.err
}
func (m *memRecorder) Close() error { return nil }

type failingRenderer struct{}

func (failingRenderer) Render(model.ScoredPattern, []model.OHLCV) (string, string, error) {
	return "", "", errors.New("no display")
}

func newScanner() *scanner.Scanner {
	v := strategy.NewValidator(strategy.DefaultThresholds(), zerolog.Nop())
	return scanner.NewScanner(scanner.DefaultGeometry(), v, zerolog.Nop())
}

func twoSymbols() []model.PriceSeries {
	return []model.PriceSeries{
		{Symbol: "AAA", Bars: fixture.Standard(2)},
		{Symbol: "BBB", Bars: fixture.Standard(2)[:20]},
	}
}

func TestRun(t *testing.T) {
	rec := &memRecorder{}
	p := New(staticSource{series: twoSymbols()}, newScanner(), Options{SourceName: "test", MaxPatterns: 3}, zerolog.Nop())
	p.Scorer = fixedScorer{}
	p.Recorder = rec
	assert.Nil(t, p.Latest())

	run, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err)
	assert.Equal(t, "test", run.Source)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
	require.Len(t, run.Results, 2)

	aaa := run.Results[0]
	assert.Equal(t, "AAA", aaa.Symbol)
	assert.Equal(t, 60, aaa.Bars)
	require.Len(t, aaa.Patterns, 3)
	assert.True(t, aaa.Patterns[0].Valid)
	assert.GreaterOrEqual(t, aaa.ValidCount(), 1)
	for i, sp := range aaa.Patterns {
		assert.Equal(t, i, sp.ID)
		require.NotNil(t, sp.ML)
		assert.Equal(t, sp.Valid, sp.ML.Valid)
	}
	assert.Empty(t, run.Results[1].Patterns, "short series yields no windows")

	require.Len(t, rec.runs, 1)
	assert.Same(t, run, rec.runs[0])
	assert.Same(t, run, p.Latest())
}

func TestRun_IDsContinueAcrossSymbols(t *testing.T) {
	series := []model.PriceSeries{
		{Symbol: "AAA", Bars: fixture.Standard(2)},
		{Symbol: "BBB", Bars: fixture.Standard(2)},
	}
	p := New(staticSource{series: series}, newScanner(), Options{MaxPatterns: 2}, zerolog.Nop())
	run, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Results[1].Patterns[0].ID)
	assert.Equal(t, 3, run.Results[1].Patterns[1].ID)
	assert.Nil(t, run.Results[0].Patterns[0].ML, "no scorer, no ML verdict")
}

func TestRun_CollectError(t *testing.T) {
	p := New(staticSource{err: errors.New("feed down")}, newScanner(), Options{MaxPatterns: 3}, zerolog.Nop())
	_, err := p.Run(context.Background())
	assert.ErrorContains(t, err, "feed down")
	assert.Nil(t, p.Latest())
}

func TestRun_SinkFailuresAreNotFatal(t *testing.T) {
	p := New(staticSource{series: twoSymbols()}, newScanner(), Options{MaxPatterns: 2}, zerolog.Nop())
	p.Renderer = failingRenderer{}
	p.Recorder = &memRecorder{err: errors.New("disk full")}

	run, err := p.Run(context.Background())
	require.NoError(t, err)
	for _, sp := range run.Results[0].Patterns {
		assert.Empty(t, sp.PNGFile)
		assert.Empty(t, sp.HTMLFile)
	}
}

func TestRun_RendersAndRecordsReport(t *testing.T) {
	dir := t.TempDir()
	patterns := filepath.Join(dir, "patterns")
	require.NoError(t, os.MkdirAll(patterns, 0o755))
	stale := filepath.Join(patterns, "old_99.png")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	report := filepath.Join(dir, "report.csv")
	p := New(staticSource{series: twoSymbols()}, newScanner(),
		Options{MaxPatterns: 1, PatternsDir: patterns, Clean: true}, zerolog.Nop())
	p.Renderer = chart.NewRenderer(patterns, zerolog.Nop())
	p.Recorder = recorder.NewCSVRecorder(report)

	run, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	sp := run.Results[0].Patterns[0]
	assert.FileExists(t, sp.PNGFile)
	assert.FileExists(t, sp.HTMLFile)

	f, err := os.Open(report)
	require.NoError(t, err)
	defer f.Close()
	rows, err := recorder.ReadReport(f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Valid)
	assert.Equal(t, sp.PNGFile, rows[0].PNGFile)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(staticSource{series: twoSymbols()}, newScanner(), Options{MaxPatterns: 2}, zerolog.Nop())
	p.Renderer = failingRenderer{}
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
