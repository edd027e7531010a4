package recorder

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresRecorder persists scan runs to Postgres using the same schema as SQLite.
type PostgresRecorder struct {
	sqlStore
	log zerolog.Logger
}

// NewPostgresRecorder connects to dsn, verifies the connection and runs migrations.
func NewPostgresRecorder(dsn string, log zerolog.Logger) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{
		sqlStore: sqlStore{db: db, dialect: postgresDialect},
		log:      log.With().Str("component", "postgres").Logger(),
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Msg("postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) Close() error {
	r.log.Info().Msg("closing postgres recorder")
	return r.sqlStore.Close()
}
