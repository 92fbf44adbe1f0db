package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// HistoryEntry is one recorded lookup outcome.
type HistoryEntry struct {
	BatchID    string                 `json:"batch_id"`
	Outcome    aircraft.LookupOutcome `json:"outcome"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// ClickHouseHistory appends every outcome written through the chain to an
// analytics table. It is write-only as far as the chain is concerned.
type ClickHouseHistory struct {
	lookup.Tier
	conn driver.Conn
	now  func() time.Time
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, tier lookup.Tier, cfg ClickHouseConfig) (*ClickHouseHistory, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	if tier.Label == "" {
		tier.Label = "clickhouse"
	}
	tier.WriteOnly = true
	return &ClickHouseHistory{Tier: tier, conn: conn, now: time.Now}, nil
}

// Close closes the ClickHouse connection.
func (h *ClickHouseHistory) Close() error {
	return h.conn.Close()
}

// CreateSchema creates the history table.
func (h *ClickHouseHistory) CreateSchema(ctx context.Context) error {
	err := h.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lookup_history (
			batch_id               UUID,
			icao                   FixedString(6),
			success                Bool,
			registration           String,
			country                LowCardinality(String),
			manufacturer           LowCardinality(String),
			model                  String,
			model_icao             LowCardinality(String),
			operator               String,
			operator_icao          LowCardinality(String),
			serial                 String,
			year_built             UInt16,
			is_military            Bool,
			source_age             DateTime64(3),
			air_pressure_attempted Bool,
			recorded_at            DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(recorded_at)
		ORDER BY (icao, recorded_at)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Read returns nothing; history is not a cache.
func (h *ClickHouseHistory) Read(context.Context, []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	return aircraft.BatchedLookupOutcome{}, nil
}

// Write appends the batch under a fresh batch ID. It never counts as saved.
func (h *ClickHouseHistory) Write(ctx context.Context, batch aircraft.BatchedLookupOutcome, _ bool) (bool, error) {
	if batch.Len() == 0 {
		return false, nil
	}

	b, err := h.conn.PrepareBatch(ctx, `INSERT INTO lookup_history (batch_id, `+outcomeColumns+`, recorded_at)`)
	if err != nil {
		return false, fmt.Errorf("prepare batch: %w", err)
	}

	id := uuid.New()
	recorded := h.now().UTC()
	for _, o := range batch.All() {
		values := outcomeValues(o, o.SourceAge.UTC())
		values[10] = uint16(max(0, min(o.YearBuilt, 65535)))
		args := append([]any{id}, values...)
		args = append(args, recorded)
		if err := b.Append(args...); err != nil {
			return false, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		return false, fmt.Errorf("send batch: %w", err)
	}
	return false, nil
}

// History returns the most recent outcomes recorded for id, newest first.
func (h *ClickHouseHistory) History(ctx context.Context, id icao.ID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.conn.Query(ctx, `
		SELECT batch_id, `+outcomeColumns+`, recorded_at
		FROM lookup_history
		WHERE icao = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryEntry
	for rows.Next() {
		var (
			batchID    uuid.UUID
			hex        string
			year       uint16
			e          HistoryEntry
			o          = &e.Outcome
			recordedAt time.Time
		)
		err := rows.Scan(&batchID, &hex, &o.Success, &o.Registration, &o.Country, &o.Manufacturer,
			&o.Model, &o.ModelICAO, &o.Operator, &o.OperatorICAO, &o.Serial, &year, &o.IsMilitary,
			&o.SourceAge, &o.AirPressureLookupAttempted, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		o.ICAO = id
		o.YearBuilt = int(year)
		e.BatchID = batchID.String()
		e.RecordedAt = recordedAt
		out = append(out, e)
	}
	return out, rows.Err()
}
