// Package pipeline runs one complete batch: collect bars, scan every symbol, re-score
// with the classifier, render charts and hand the run to the recorders.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"PatternSentinel/internal/chart"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scanner"
)

// Source supplies the series to scan.
type Source interface {
	Collect(ctx context.Context) ([]model.PriceSeries, error)
}

// Scorer re-scores a record; nil means no opinion.
type Scorer interface {
	Classify(rec model.PatternRecord) *model.Classification
}

// ChartRenderer writes chart files for one pattern.
type ChartRenderer interface {
	Render(p model.ScoredPattern, bars []model.OHLCV) (pngPath, htmlPath string, err error)
}

// Options controls the optional stages.
type Options struct {
	SourceName  string
	MaxPatterns int    // per symbol
	PatternsDir string // cleaned before each run when Clean is set
	Clean       bool
	RenderLimit int // concurrent chart renders, default 4
}

// Pipeline wires the stages together. Scorer, Renderer and Recorder may be nil.
type Pipeline struct {
	Source   Source
	Scanner  *scanner.Scanner
	Scorer   Scorer
	Renderer ChartRenderer
	Recorder recorder.Recorder
	opts     Options
	log      zerolog.Logger

	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *model.ScanRun
}

// New creates a Pipeline.
func New(src Source, sc *scanner.Scanner, opts Options, log zerolog.Logger) *Pipeline {
	if opts.RenderLimit <= 0 {
		opts.RenderLimit = 4
	}
	return &Pipeline{
		Source:  src,
		Scanner: sc,
		opts:    opts,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one batch. Runs are serialised; a second caller waits for the first.
// Chart and recorder failures are logged and do not fail the run.
func (p *Pipeline) Run(ctx context.Context) (*model.ScanRun, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	run := &model.ScanRun{ID: uuid.NewString(), Source: p.opts.SourceName, StartedAt: time.Now().UTC()}
	log := p.log.With().Str("run", run.ID).Logger()

	if p.opts.Clean && p.opts.PatternsDir != "" {
		n, err := chart.Clean(p.opts.PatternsDir)
		if err != nil {
			log.Warn().Err(err).Msg("clean old charts")
		} else {
			log.Info().Int("removed", n).Str("dir", p.opts.PatternsDir).Msg("cleared old PNG/HTML charts")
		}
	}

	series, err := p.Source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	scanned := p.Scanner.ScanAll(series, p.opts.MaxPatterns)
	nextID := 0
	for i, s := range series {
		res := model.SymbolResult{Symbol: s.Symbol, Bars: len(s.Bars), Patterns: make([]model.ScoredPattern, len(scanned[i]))}
		for j, rec := range scanned[i] {
			sp := model.ScoredPattern{PatternRecord: rec, ID: nextID}
			nextID++
			if p.Scorer != nil {
				sp.ML = p.Scorer.Classify(rec)
			}
			res.Patterns[j] = sp
		}
		log.Info().Str("symbol", s.Symbol).Int("windows", len(res.Patterns)).Int("valid", res.ValidCount()).
			Msg("detected cup & handle patterns")
		run.Results = append(run.Results, res)
	}

	if p.Renderer != nil {
		if err := p.renderCharts(ctx, run, series); err != nil {
			return nil, err
		}
	}

	run.FinishedAt = time.Now().UTC()
	if p.Recorder != nil {
		if err := p.Recorder.RecordRun(run); err != nil {
			log.Error().Err(err).Msg("record run")
		}
	}

	windows, valid := run.Totals()
	log.Info().Int("symbols", len(run.Results)).Int("windows", windows).Int("valid", valid).
		Dur("took", run.FinishedAt.Sub(run.StartedAt)).Msg("scan run finished")

	p.mu.Lock()
	p.latest = run
	p.mu.Unlock()
	return run, nil
}

// renderCharts renders every pattern with bounded concurrency. A failed render is
// logged and leaves that pattern's file fields empty; only cancellation aborts.
func (p *Pipeline) renderCharts(ctx context.Context, run *model.ScanRun, series []model.PriceSeries) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.RenderLimit)
	for i := range run.Results {
		bars := series[i].Bars
		for j := range run.Results[i].Patterns {
			sp := &run.Results[i].Patterns[j]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pngPath, htmlPath, err := p.Renderer.Render(*sp, bars)
				if err != nil {
					p.log.Warn().Err(err).Str("symbol", sp.Symbol).Int("pattern", sp.ID).Msg("failed to save chart assets")
				}
				sp.PNGFile, sp.HTMLFile = pngPath, htmlPath
				return nil
			})
		}
	}
	return g.Wait()
}

// Latest returns the most recent completed run, or nil before the first one.
func (p *Pipeline) Latest() *model.ScanRun {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}
