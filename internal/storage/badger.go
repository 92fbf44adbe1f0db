package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

const badgerKeyPrefix = "lookup/"

// BadgerConfig holds settings for the embedded tier.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// TTL is how long an outcome is kept. Zero keeps it forever.
	TTL    time.Duration
	Logger *slog.Logger
}

// BadgerCache is an embedded key-value tier. Entries expire with a TTL.
type BadgerCache struct {
	lookup.Tier
	db       *badger.DB
	ttl      time.Duration
	inMemory bool
}

// OpenBadger opens or creates the tier's database.
func OpenBadger(tier lookup.Tier, cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent database")
	}
	if tier.Label == "" {
		tier.Label = "badger"
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerCache{Tier: tier, db: db, ttl: cfg.TTL, inMemory: cfg.InMemory}, nil
}

// Close closes the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func badgerKey(id icao.ID) []byte {
	return []byte(badgerKeyPrefix + id.String())
}

func (c *BadgerCache) Read(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var out aircraft.BatchedLookupOutcome
	err := c.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get(badgerKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", id, err)
			}
			err = item.Value(func(val []byte) error {
				var o aircraft.LookupOutcome
				if err := json.Unmarshal(val, &o); err != nil {
					return fmt.Errorf("decode %s: %w", id, err)
				}
				out.Add(o)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Write stores every outcome. An in-memory database does not count as
// having saved the batch.
func (c *BadgerCache) Write(_ context.Context, batch aircraft.BatchedLookupOutcome, _ bool) (bool, error) {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for _, o := range batch.All() {
		val, err := json.Marshal(o)
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", o.ICAO, err)
		}
		e := badger.NewEntry(badgerKey(o.ICAO), val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		if err := wb.SetEntry(e); err != nil {
			return false, fmt.Errorf("set %s: %w", o.ICAO, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return false, fmt.Errorf("flush: %w", err)
	}
	return !c.inMemory, nil
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
