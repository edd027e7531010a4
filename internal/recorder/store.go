package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"PatternSentinel/internal/model"
)

// dialect captures the few places SQLite and Postgres disagree.
type dialect struct {
	name    string
	autoID  string // primary key column definition for pattern_records.id
	dollars bool   // Postgres-style $n placeholders
}

var (
	sqliteDialect   = dialect{name: "sqlite", autoID: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{name: "postgres", autoID: "BIGSERIAL PRIMARY KEY", dollars: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.dollars {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id          TEXT PRIMARY KEY,
			source      TEXT,
			started_at  BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			windows     INTEGER,
			valid       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON scan_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS pattern_records (
			id              ` + d.autoID + `,
			run_id          TEXT NOT NULL,
			pattern_id      INTEGER,
			symbol          TEXT NOT NULL,
			cup_start       INTEGER,
			cup_end         INTEGER,
			handle_start    INTEGER,
			handle_end      INTEGER,
			breakout        INTEGER,
			cup_depth       DOUBLE PRECISION,
			cup_duration    INTEGER,
			handle_depth    DOUBLE PRECISION,
			handle_duration INTEGER,
			valid           BOOLEAN,
			invalid_reason  TEXT,
			r2              DOUBLE PRECISION,
			ml_valid        BOOLEAN,
			confidence      DOUBLE PRECISION,
			png_file        TEXT,
			html_file       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_run ON pattern_records(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON pattern_records(symbol, valid)`,
	}
}

// sqlStore holds the SQL shared by the SQLite and Postgres recorders.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.Mutex
}

func (s *sqlStore) migrate() error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *sqlStore) RecordRun(run *model.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%s begin: %w", s.dialect.name, err)
	}
	defer tx.Rollback()

	sum := Summarize(run)
	if _, err := tx.Exec(s.dialect.rebind(`INSERT INTO scan_runs
		(id, source, started_at, finished_at, windows, valid)
		VALUES (?,?,?,?,?,?)`),
		sum.ID, sum.Source, sum.StartedAt.UnixMilli(), sum.FinishedAt.UnixMilli(), sum.Windows, sum.Valid,
	); err != nil {
		return fmt.Errorf("%s insert run: %w", s.dialect.name, err)
	}

	stmt, err := tx.Prepare(s.dialect.rebind(`INSERT INTO pattern_records
		(run_id, pattern_id, symbol, cup_start, cup_end, handle_start, handle_end, breakout,
		 cup_depth, cup_duration, handle_depth, handle_duration, valid, invalid_reason, r2,
		 ml_valid, confidence, png_file, html_file)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("%s prepare: %w", s.dialect.name, err)
	}
	defer stmt.Close()

	for _, res := range run.Results {
		for _, p := range res.Patterns {
			var mlValid *bool
			var confidence *float64
			if p.ML != nil {
				mlValid, confidence = &p.ML.Valid, &p.ML.Confidence
			}
			if _, err := stmt.Exec(
				run.ID, p.ID, p.Symbol, p.CupStart, p.CupEnd, p.HandleStart, p.HandleEnd, p.Breakout,
				p.CupDepth, p.CupDuration, p.HandleDepth, p.HandleDuration, p.Valid, p.InvalidReason, p.R2,
				mlValid, confidence, p.PNGFile, p.HTMLFile,
			); err != nil {
				return fmt.Errorf("%s insert pattern %d: %w", s.dialect.name, p.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *sqlStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT id, source, started_at, finished_at, windows, valid
		FROM scan_runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%s query runs: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Source, &started, &finished, &r.Windows, &r.Valid); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Patterns returns the stored records of one run, optionally filtered by symbol.
func (s *sqlStore) Patterns(ctx context.Context, runID, symbol string) ([]model.ScoredPattern, error) {
	query := `SELECT pattern_id, symbol, cup_start, cup_end, handle_start, handle_end, breakout,
		cup_depth, cup_duration, handle_depth, handle_duration, valid, invalid_reason, r2,
		ml_valid, confidence, png_file, html_file
		FROM pattern_records WHERE run_id = ?`
	args := []any{runID}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY pattern_id"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s query patterns: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var out []model.ScoredPattern
	for rows.Next() {
		var p model.ScoredPattern
		var cupDepth, handleDepth, r2, confidence sql.NullFloat64
		var mlValid sql.NullBool
		if err := rows.Scan(&p.ID, &p.Symbol, &p.CupStart, &p.CupEnd, &p.HandleStart, &p.HandleEnd, &p.Breakout,
			&cupDepth, &p.CupDuration, &handleDepth, &p.HandleDuration, &p.Valid, &p.InvalidReason, &r2,
			&mlValid, &confidence, &p.PNGFile, &p.HTMLFile); err != nil {
			return nil, err
		}
		p.CupDepth = nullable(cupDepth)
		p.HandleDepth = nullable(handleDepth)
		p.R2 = nullable(r2)
		if mlValid.Valid {
			p.ML = &model.Classification{Valid: mlValid.Bool, Confidence: confidence.Float64}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
