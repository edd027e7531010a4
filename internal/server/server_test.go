package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
)

type stubRunner struct {
	latest *model.ScanRun
	err    error
	calls  int
}

func (s *stubRunner) Run(_ context.Context) (*model.ScanRun, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.latest = testRun()
	return s.latest, nil
}

func (s *stubRunner) Latest() *model.ScanRun { return s.latest }

type stubStore struct {
	runs    []recorder.RunSummary
	gotRun  string
	gotSym  string
	failing bool
}

func (s *stubStore) RecentRuns(_ context.Context, limit int) ([]recorder.RunSummary, error) {
	if s.failing {
		return nil, errors.New("db down")
	}
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubStore) Patterns(_ context.Context, runID, symbol string) ([]model.ScoredPattern, error) {
	s.gotRun, s.gotSym = runID, symbol
	return nil, nil
}

func testRun() *model.ScanRun {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	mk := func(id int, sym string, valid bool) model.ScoredPattern {
		return model.ScoredPattern{ID: id, PatternRecord: model.PatternRecord{Symbol: sym, Valid: valid}}
	}
	return &model.ScanRun{
		ID: "r1", Source: "csv", StartedAt: now, FinishedAt: now.Add(2 * time.Second),
		Results: []model.SymbolResult{
			{Symbol: "BTCUSDT", Bars: 100, Patterns: []model.ScoredPattern{mk(1, "BTCUSDT", true), mk(2, "BTCUSDT", false)}},
			{Symbol: "ETHUSDT", Bars: 100, Patterns: []model.ScoredPattern{mk(3, "ETHUSDT", true)}},
		},
	}
}

func newTestServer(runner Runner, store *stubStore, charts string) *Server {
	cfg := Config{Log: zerolog.Nop(), Runner: runner, ChartsDir: charts, DevMode: true}
	if store != nil {
		cfg.History = store
		cfg.Patterns = store
	}
	return New(cfg)
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubRunner{}, nil, "")
	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLatestBeforeAndAfterScan(t *testing.T) {
	runner := &stubRunner{}
	s := newTestServer(runner, nil, "")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/runs/latest").Code)

	rec := do(t, s, http.MethodPost, "/api/scan")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum recorder.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "r1", sum.ID)
	assert.Equal(t, 3, sum.Windows)
	assert.Equal(t, 2, sum.Valid)

	rec = do(t, s, http.MethodGet, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.ScanRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Len(t, run.Results, 2)
}

func TestScanFailure(t *testing.T) {
	s := newTestServer(&stubRunner{err: errors.New("no series collected")}, nil, "")
	rec := do(t, s, http.MethodPost, "/api/scan")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "no series collected")
}

func TestPatternsFilter(t *testing.T) {
	s := newTestServer(&stubRunner{latest: testRun()}, nil, "")

	tests := []struct {
		name  string
		query string
		ids   []int
	}{
		{"all", "", []int{1, 2, 3}},
		{"symbol", "?symbol=btcusdt", []int{1, 2}},
		{"valid", "?valid=true", []int{1, 3}},
		{"invalid for symbol", "?symbol=BTCUSDT&valid=false", []int{2}},
		{"unknown symbol", "?symbol=XRP", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/patterns"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)
			var got []model.ScoredPattern
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			ids := []int{}
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/patterns?valid=maybe").Code)
}

func TestRunsHistory(t *testing.T) {
	store := &stubStore{runs: []recorder.RunSummary{{ID: "b"}, {ID: "a"}}}
	s := newTestServer(&stubRunner{}, store, "")

	rec := do(t, s, http.MethodGet, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []recorder.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/runs?limit=-3").Code)

	store.failing = true
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/runs").Code)
}

func TestRunsWithoutHistory(t *testing.T) {
	s := newTestServer(&stubRunner{}, nil, "")
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/runs").Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/runs/r1/patterns").Code)
}

func TestRunsWithReportOnlyRecorder(t *testing.T) {
	multi := recorder.NewMultiRecorder(recorder.NewCSVRecorder(filepath.Join(t.TempDir(), "report.csv")))
	s := New(Config{Log: zerolog.Nop(), Runner: &stubRunner{}, History: multi, Patterns: multi, DevMode: true})

	rec := do(t, s, http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "not recorded")
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/runs/abc/patterns").Code)
}

func TestRunPatterns(t *testing.T) {
	store := &stubStore{}
	s := newTestServer(&stubRunner{}, store, "")

	rec := do(t, s, http.MethodGet, "/api/runs/r-42/patterns?symbol=ETHUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, "r-42", store.gotRun)
	assert.Equal(t, "ETHUSDT", store.gotSym)
}

func TestChartsServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSDT_1.html"), []byte("<html>chart</html>"), 0o644))
	s := newTestServer(&stubRunner{}, nil, dir)

	rec := do(t, s, http.MethodGet, "/charts/BTCUSDT_1.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chart")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/charts/missing.png").Code)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := newTestServer(&stubRunner{}, nil, "")
	assert.NoError(t, s.Shutdown(context.Background()))
}
