package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases on a
	// single handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			longitude REAL NOT NULL,
			latitude REAL NOT NULL,
			severity INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 10),
			description TEXT NOT NULL,
			affected_area REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			readings TEXT NOT NULL DEFAULT '[]',
			alerts_sent INTEGER NOT NULL DEFAULT 0,
			source_ref TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			disaster_type TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '{}',
			severity_threshold INTEGER NOT NULL CHECK (severity_threshold BETWEEN 1 AND 10),
			channels TEXT NOT NULL DEFAULT '{}',
			cooldown_minutes INTEGER NOT NULL DEFAULT 30,
			last_triggered INTEGER,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alert_dispatches (
			id TEXT PRIMARY KEY,
			disaster_id TEXT NOT NULL,
			alert_config_id TEXT NOT NULL,
			disaster_type TEXT NOT NULL,
			severity INTEGER NOT NULL,
			longitude REAL NOT NULL,
			latitude REAL NOT NULL,
			description TEXT NOT NULL,
			channels TEXT NOT NULL DEFAULT '[]',
			dispatched_at INTEGER NOT NULL,
			FOREIGN KEY (disaster_id) REFERENCES disasters(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_disasters_created_at ON disasters(created_at);
		CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters(type);
		CREATE INDEX IF NOT EXISTS idx_disasters_lat_lon ON disasters(latitude, longitude);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_disasters_source_ref ON disasters(source_ref) WHERE source_ref IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_alert_configs_match ON alert_configs(is_active, disaster_type, severity_threshold);
		CREATE INDEX IF NOT EXISTS idx_alert_dispatches_disaster_id ON alert_dispatches(disaster_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Timestamps are stored as unix milliseconds so SQL comparisons are numeric.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
