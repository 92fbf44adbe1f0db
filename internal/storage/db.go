package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// Config holds settings for every cache tier. Disabled tiers are not opened.
type Config struct {
	Memory     MemoryConfig
	Badger     BadgerTierConfig
	SQLite     SQLiteConfig
	Postgres   PostgresTierConfig
	ClickHouse ClickHouseTierConfig
}

// MemoryConfig configures the in-process tier.
type MemoryConfig struct {
	Enabled  bool
	Size     int
	TTL      time.Duration
	Priority int
}

// BadgerTierConfig configures the embedded tier.
type BadgerTierConfig struct {
	Enabled  bool
	Path     string
	InMemory bool
	TTL      time.Duration
	Priority int
}

// SQLiteConfig configures the fallback tier.
type SQLiteConfig struct {
	Enabled bool
	Path    string
}

// PostgresTierConfig configures the shared tier.
type PostgresTierConfig struct {
	Enabled bool
	PostgresConfig
	Priority int
}

// ClickHouseTierConfig configures the history table.
type ClickHouseTierConfig struct {
	Enabled bool
	ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
// Only the memory and SQLite tiers are enabled.
func DefaultConfig() Config {
	return Config{
		Memory: MemoryConfig{
			Enabled:  true,
			Size:     20000,
			TTL:      6 * time.Hour,
			Priority: 100,
		},
		Badger: BadgerTierConfig{
			Path:     "data/lookup-badger",
			TTL:      30 * 24 * time.Hour,
			Priority: 50,
		},
		SQLite: SQLiteConfig{
			Enabled: true,
			Path:    "data/lookup.db",
		},
		Postgres: PostgresTierConfig{
			PostgresConfig: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "vrscore",
				User:     "vrscore",
				Password: "vrscore",
			},
			Priority: 10,
		},
		ClickHouse: ClickHouseTierConfig{
			ClickHouseConfig: ClickHouseConfig{
				Host:     "localhost",
				Port:     9000,
				Database: "vrscore",
				User:     "default",
			},
		},
	}
}

// Caches holds the opened tiers. Fields for disabled tiers are nil.
type Caches struct {
	Memory     *MemoryCache
	Badger     *BadgerCache
	SQLite     *SQLiteCache
	Postgres   *PostgresCache
	ClickHouse *ClickHouseHistory
}

// Open opens every enabled tier and creates server-side schemas. On error,
// anything already opened is closed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Caches, error) {
	c := &Caches{}

	if cfg.Memory.Enabled {
		c.Memory = NewMemoryCache(lookup.Tier{Label: "memory", ReadRank: cfg.Memory.Priority, WriteRank: cfg.Memory.Priority},
			cfg.Memory.Size, cfg.Memory.TTL)
	}

	if cfg.Badger.Enabled {
		b, err := OpenBadger(lookup.Tier{Label: "badger", ReadRank: cfg.Badger.Priority, WriteRank: cfg.Badger.Priority},
			BadgerConfig{Path: cfg.Badger.Path, InMemory: cfg.Badger.InMemory, TTL: cfg.Badger.TTL, Logger: logger})
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("badger: %w", err)
		}
		c.Badger = b
	}

	if cfg.SQLite.Enabled {
		s, err := OpenSQLite(DefaultSQLiteTier, cfg.SQLite.Path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		c.SQLite = s
	}

	if cfg.Postgres.Enabled {
		pg, err := OpenPostgres(ctx, lookup.Tier{Label: "postgres", ReadRank: cfg.Postgres.Priority, WriteRank: cfg.Postgres.Priority},
			cfg.Postgres.PostgresConfig)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.Postgres = pg
		if err := pg.CreateSchema(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}

	if cfg.ClickHouse.Enabled {
		ch, err := OpenClickHouse(ctx, lookup.Tier{Label: "clickhouse"}, cfg.ClickHouse.ClickHouseConfig)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		c.ClickHouse = ch
		if err := ch.CreateSchema(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}

	return c, nil
}

// All returns the opened tiers for a lookup.Chain.
func (c *Caches) All() []lookup.Cache {
	var out []lookup.Cache
	if c.Memory != nil {
		out = append(out, c.Memory)
	}
	if c.Badger != nil {
		out = append(out, c.Badger)
	}
	if c.Postgres != nil {
		out = append(out, c.Postgres)
	}
	if c.SQLite != nil {
		out = append(out, c.SQLite)
	}
	if c.ClickHouse != nil {
		out = append(out, c.ClickHouse)
	}
	return out
}

// Close closes every opened tier.
func (c *Caches) Close() error {
	var errs []error
	if c.Badger != nil {
		if err := c.Badger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("badger: %w", err))
		}
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.ClickHouse != nil {
		if err := c.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	return errors.Join(errs...)
}
