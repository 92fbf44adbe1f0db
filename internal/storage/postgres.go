package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresCache keeps outcomes in a PostgreSQL database that several
// instances can share.
type PostgresCache struct {
	lookup.Tier
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, tier lookup.Tier, cfg PostgresConfig) (*PostgresCache, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if tier.Label == "" {
		tier.Label = "postgres"
	}
	return &PostgresCache{Tier: tier, pool: pool}, nil
}

// Close closes the connection pool.
func (c *PostgresCache) Close() {
	c.pool.Close()
}

// CreateSchema creates the outcome table.
func (c *PostgresCache) CreateSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS lookup_outcomes (
		icao                   TEXT PRIMARY KEY,
		success                BOOLEAN NOT NULL,
		registration           TEXT NOT NULL DEFAULT '',
		country                TEXT NOT NULL DEFAULT '',
		manufacturer           TEXT NOT NULL DEFAULT '',
		model                  TEXT NOT NULL DEFAULT '',
		model_icao             TEXT NOT NULL DEFAULT '',
		operator               TEXT NOT NULL DEFAULT '',
		operator_icao          TEXT NOT NULL DEFAULT '',
		serial                 TEXT NOT NULL DEFAULT '',
		year_built             INTEGER NOT NULL DEFAULT 0,
		is_military            BOOLEAN NOT NULL DEFAULT FALSE,
		source_age             TIMESTAMPTZ NOT NULL,
		air_pressure_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_lookup_outcomes_registration ON lookup_outcomes(registration);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (c *PostgresCache) Read(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var out aircraft.BatchedLookupOutcome
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := c.pool.Query(ctx,
		`SELECT `+outcomeColumns+` FROM lookup_outcomes WHERE icao = ANY($1)`, hexes(ids))
	if err != nil {
		return out, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var age time.Time
		o, err := scanOutcome(rows, &age)
		if err != nil {
			return out, fmt.Errorf("scan outcome: %w", err)
		}
		o.SourceAge = age
		out.Add(o)
	}
	return out, rows.Err()
}

// Write upserts the batch in one round trip. It always writes: a shared
// database must see outcomes that another local tier already saved.
func (c *PostgresCache) Write(ctx context.Context, batch aircraft.BatchedLookupOutcome, _ bool) (bool, error) {
	if batch.Len() == 0 {
		return false, nil
	}

	b := &pgx.Batch{}
	for _, o := range batch.All() {
		b.Queue(`
			INSERT INTO lookup_outcomes (`+outcomeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (icao) DO UPDATE SET
				success = EXCLUDED.success,
				registration = EXCLUDED.registration,
				country = EXCLUDED.country,
				manufacturer = EXCLUDED.manufacturer,
				model = EXCLUDED.model,
				model_icao = EXCLUDED.model_icao,
				operator = EXCLUDED.operator,
				operator_icao = EXCLUDED.operator_icao,
				serial = EXCLUDED.serial,
				year_built = EXCLUDED.year_built,
				is_military = EXCLUDED.is_military,
				source_age = EXCLUDED.source_age,
				air_pressure_attempted = EXCLUDED.air_pressure_attempted,
				updated_at = NOW()
			WHERE lookup_outcomes.source_age <= EXCLUDED.source_age
		`, outcomeValues(o, o.SourceAge)...)
	}

	br := c.pool.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return false, fmt.Errorf("upsert outcome: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return false, fmt.Errorf("close batch: %w", err)
	}
	return true, nil
}
