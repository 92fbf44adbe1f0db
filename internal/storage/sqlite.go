package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// DefaultSQLiteTier is the fallback tier: asked last and only written when
// no other tier has saved the batch.
var DefaultSQLiteTier = lookup.Tier{
	Label:     "sqlite",
	ReadRank:  lookup.DefaultPriority,
	WriteRank: lookup.DefaultPriority,
}

// SQLiteCache keeps outcomes in a local SQLite database.
type SQLiteCache struct {
	lookup.Tier
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. An empty path or
// ":memory:" uses a private in-memory database.
func OpenSQLite(tier lookup.Tier, path string) (*SQLiteCache, error) {
	memory := path == "" || path == ":memory:"
	if path == "" {
		path = ":memory:"
	}
	if tier.Label == "" {
		tier.Label = "sqlite"
	}

	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if memory {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent access.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteCache{Tier: tier, db: db}, nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lookup_outcomes (
		icao                   TEXT PRIMARY KEY,
		success                INTEGER NOT NULL,
		registration           TEXT NOT NULL DEFAULT '',
		country                TEXT NOT NULL DEFAULT '',
		manufacturer           TEXT NOT NULL DEFAULT '',
		model                  TEXT NOT NULL DEFAULT '',
		model_icao             TEXT NOT NULL DEFAULT '',
		operator               TEXT NOT NULL DEFAULT '',
		operator_icao          TEXT NOT NULL DEFAULT '',
		serial                 TEXT NOT NULL DEFAULT '',
		year_built             INTEGER NOT NULL DEFAULT 0,
		is_military            INTEGER NOT NULL DEFAULT 0,
		source_age             TEXT NOT NULL,
		air_pressure_attempted INTEGER NOT NULL DEFAULT 0,
		updated_at             TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_lookup_outcomes_registration ON lookup_outcomes(registration);
	`
	_, err := db.Exec(schema)
	return err
}

func (c *SQLiteCache) Read(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var out aircraft.BatchedLookupOutcome
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, h := range hexes(ids) {
		args[i] = h
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+outcomeColumns+` FROM lookup_outcomes WHERE icao IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return out, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var age string
		o, err := scanOutcome(rows, &age)
		if err != nil {
			return out, fmt.Errorf("scan outcome: %w", err)
		}
		if o.SourceAge, err = time.Parse(time.RFC3339Nano, age); err != nil {
			return out, fmt.Errorf("parse source age %q: %w", age, err)
		}
		out.Add(o)
	}
	return out, rows.Err()
}

// Write upserts the batch unless a higher tier has already saved it.
func (c *SQLiteCache) Write(ctx context.Context, batch aircraft.BatchedLookupOutcome, alreadySaved bool) (bool, error) {
	if alreadySaved || batch.Len() == 0 {
		return false, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lookup_outcomes (`+outcomeColumns+`)
		VALUES (`+placeholders(14)+`)
		ON CONFLICT (icao) DO UPDATE SET
			success = excluded.success,
			registration = excluded.registration,
			country = excluded.country,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			model_icao = excluded.model_icao,
			operator = excluded.operator,
			operator_icao = excluded.operator_icao,
			serial = excluded.serial,
			year_built = excluded.year_built,
			is_military = excluded.is_military,
			source_age = excluded.source_age,
			air_pressure_attempted = excluded.air_pressure_attempted,
			updated_at = datetime('now')
	`)
	if err != nil {
		return false, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range batch.All() {
		age := o.SourceAge.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, outcomeValues(o, age)...); err != nil {
			return false, fmt.Errorf("upsert %s: %w", o.ICAO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
