package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternSentinel/internal/model"
)

func ptr(v float64) *float64 { return &v }

func sampleRun(id string, started time.Time) *model.ScanRun {
	valid := model.ScoredPattern{
		ID: 0,
		PatternRecord: model.PatternRecord{
			Symbol:         "BTCUSDT",
			Window:         model.Window{CupStart: 0, CupEnd: 30, HandleStart: 31, HandleEnd: 41, Breakout: 42},
			CupDepth:       ptr(204),
			CupDuration:    31,
			HandleDepth:    ptr(59),
			HandleDuration: 11,
			Valid:          true,
			R2:             ptr(0.987654321),
		},
		ML:      &model.Classification{Valid: true, Confidence: 0.93},
		PNGFile: "patterns/BTCUSDT_0.png",
	}
	invalid := model.ScoredPattern{
		ID: 1,
		PatternRecord: model.PatternRecord{
			Symbol:         "ETHUSDT",
			Window:         model.Window{CupStart: 1, CupEnd: 31, HandleStart: 32, HandleEnd: 42, Breakout: 43},
			CupDuration:    31,
			HandleDuration: 11,
			InvalidReason:  "Cup too shallow",
		},
	}
	return &model.ScanRun{
		ID:         id,
		Source:     "csv",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Results: []model.SymbolResult{
			{Symbol: "BTCUSDT", Bars: 60, Patterns: []model.ScoredPattern{valid}},
			{Symbol: "ETHUSDT", Bars: 60, Patterns: []model.ScoredPattern{invalid}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun("r1", time.Unix(100, 0)))
	assert.Equal(t, "r1", s.ID)
	assert.Equal(t, 2, s.Windows)
	assert.Equal(t, 1, s.Valid)
}

func TestWriteReport_ReadBack(t *testing.T) {
	run := sampleRun("r1", time.Now())
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, []model.ScoredPattern{run.Results[0].Patterns[0], run.Results[1].Patterns[0]}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ReportColumns, ","), lines[0])
	assert.Equal(t, "BTCUSDT,0,30,31,41,204,31,59,11,42,true,,0.987654,true,0.93,patterns/BTCUSDT_0.png,", lines[1])
	assert.Equal(t, "ETHUSDT,1,31,32,42,,31,,11,43,false,Cup too shallow,,,,,", lines[2])

	back, err := ReadReport(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.True(t, back[0].Valid)
	assert.InDelta(t, 204, *back[0].CupDepth, 1e-9)
	assert.InDelta(t, 0.987654, *back[0].R2, 1e-9)
	require.NotNil(t, back[0].ML)
	assert.InDelta(t, 0.93, back[0].ML.Confidence, 1e-9)
	assert.Nil(t, back[1].CupDepth)
	assert.Nil(t, back[1].ML)
	assert.Equal(t, "Cup too shallow", back[1].InvalidReason)
	assert.Equal(t, 1, back[1].ID)
}

func TestReadReport_Errors(t *testing.T) {
	got, err := ReadReport(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadReport(strings.NewReader("symbol,valid\nX,true\n"))
	assert.ErrorContains(t, err, "missing")

	header := strings.Join(ReportColumns, ",") + "\n"
	_, err = ReadReport(strings.NewReader(header + "X,0,1,2,3,abc,1,,1,4,true,,,,,,\n"))
	assert.ErrorContains(t, err, "cup_depth")

	_, err = ReadReport(strings.NewReader(header + "X,0,1,2,3,,1,,1,4,maybe,,,,,,\n"))
	assert.ErrorContains(t, err, "valid")

	// pandas-style booleans and NaN cells are accepted
	rows, err := ReadReport(strings.NewReader(header + "X,0,1,2,3,nan,1,,1,4,True,,,,,,\n"))
	require.NoError(t, err)
	assert.True(t, rows[0].Valid)
	assert.Nil(t, rows[0].CupDepth)
}

func TestCSVRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.csv")
	rec := NewCSVRecorder(path)

	require.NoError(t, rec.RecordRun(sampleRun("r1", time.Now())))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	require.NoError(t, rec.RecordRun(&model.ScanRun{ID: "empty"}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "report replaced, not appended")
	require.NoError(t, rec.Close())
}

func TestSQLiteRecorder(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	defer rec.Close()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, rec.RecordRun(sampleRun("run-a", t0)))
	require.NoError(t, rec.RecordRun(sampleRun("run-b", t0.Add(time.Hour))))

	runs, err := rec.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID, "newest first")
	assert.Equal(t, 2, runs[0].Windows)
	assert.Equal(t, 1, runs[0].Valid)
	assert.True(t, t0.Equal(runs[1].StartedAt))

	patterns, err := rec.Patterns(context.Background(), "run-a", "")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.True(t, patterns[0].Valid)
	assert.InDelta(t, 0.987654321, *patterns[0].R2, 1e-12)
	require.NotNil(t, patterns[0].ML)
	assert.InDelta(t, 0.93, patterns[0].ML.Confidence, 1e-12)
	assert.Nil(t, patterns[1].CupDepth)
	assert.Nil(t, patterns[1].ML)
	assert.Equal(t, model.Window{CupStart: 1, CupEnd: 31, HandleStart: 32, HandleEnd: 42, Breakout: 43}, patterns[1].Window)

	eth, err := rec.Patterns(context.Background(), "run-a", "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, eth, 1)

	assert.Error(t, rec.RecordRun(sampleRun("run-a", t0)), "duplicate run id")
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", postgresDialect.rebind(q))
	assert.Contains(t, postgresDialect.schema()[2], "BIGSERIAL PRIMARY KEY")
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	rec, err := NewPostgresRecorder(dsn, zerolog.Nop())
	require.NoError(t, err)
	defer rec.Close()

	id := "pg-" + time.Now().Format("150405.000000")
	require.NoError(t, rec.RecordRun(sampleRun(id, time.Now())))
	patterns, err := rec.Patterns(context.Background(), id, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
}

type failingRecorder struct{ closed bool }

func (f *failingRecorder) RecordRun(*model.ScanRun) error { return errors.New("disk full") }
func (f *failingRecorder) Close() error                   { f.closed = true; return nil }

func TestMultiRecorder(t *testing.T) {
	sqlite, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "m.db"), zerolog.Nop())
	require.NoError(t, err)
	failing := &failingRecorder{}
	multi := NewMultiRecorder(NewNoopRecorder(), nil, failing, sqlite)

	err = multi.RecordRun(sampleRun("m1", time.Now()))
	assert.ErrorContains(t, err, "disk full")

	runs, err := multi.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1, "other recorders still written")

	patterns, err := multi.Patterns(context.Background(), "m1", "")
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)

	empty := NewMultiRecorder(NewNoopRecorder(), NewCSVRecorder(filepath.Join(t.TempDir(), "r.csv")))
	runs, err = empty.RecentRuns(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotRecorded)
	assert.Nil(t, runs)
	_, err = empty.Patterns(context.Background(), "m1", "")
	assert.ErrorIs(t, err, ErrNotRecorded)
}
