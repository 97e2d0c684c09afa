package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open dispatches on the DSN scheme to select a backend. "postgres://" and
// "postgresql://" select the server engine; anything else — a filesystem
// path or ":memory:" — selects the embedded SQLite engine. modelVersion is
// the embedding model identifier the caller expects reads to match.
func Open(dsn, modelVersion string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("pinging postgres: %w", err)
		}
		return &PGRepo{DB: db, ModelVersion: modelVersion}, nil
	default:
		return OpenSQLite(dsn, modelVersion)
	}
}
