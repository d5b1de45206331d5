package database

import (
	"context"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Store persists alert rules and counters. The same SQL runs on sqlite
// and postgres; placeholders are rebound per driver.
type Store struct {
	db *sqlx.DB
}

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS alerts (
	user_id BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	market_id BIGINT NOT NULL DEFAULT 0,
	threshold_percent TEXT NOT NULL,
	last_notified_price TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, symbol)
);`

const createMetricsTable = `
CREATE TABLE IF NOT EXISTS metrics (
	metric_name TEXT NOT NULL,
	label_key TEXT NOT NULL DEFAULT '',
	label_value TEXT NOT NULL DEFAULT '',
	metric_value DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (metric_name, label_key, label_value)
);`

// Open connects with driver "sqlite" (dsn is a file path) or "pgx" (dsn is a
// postgres connection string) and creates missing tables.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if driver == "sqlite" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debugf("Database initialized successfully (%s).", driver)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAlertsTable); err != nil {
		return errors.Wrap(err, "failed to create alerts table")
	}
	if err := s.addVersionColumn(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, createMetricsTable); err != nil {
		return errors.Wrap(err, "failed to create metrics table")
	}
	return nil
}

// addVersionColumn upgrades alerts tables created before rules carried a
// version.
func (s *Store) addVersionColumn(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `SELECT version FROM alerts LIMIT 1;`); err == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE alerts ADD COLUMN version BIGINT NOT NULL DEFAULT 1;`); err != nil {
		return errors.Wrap(err, "failed to add alerts version column")
	}
	log.Info("Added version column to alerts table")
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
