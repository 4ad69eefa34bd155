package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Tracer receives timing for every statement the DB issues.
type Tracer interface {
	Record(ctx context.Context, op, query string, d time.Duration, err error)
}

type DB struct {
	*sql.DB
	tracer Tracer
}

func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

// SetTracer installs t for subsequent statements. Nil disables tracing.
func (db *DB) SetTracer(t Tracer) { db.tracer = t }

func (db *DB) trace(ctx context.Context, op, query string, start time.Time, err error) {
	if db.tracer != nil {
		db.tracer.Record(ctx, op, query, time.Since(start), err)
	}
}
