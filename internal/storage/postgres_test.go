package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T) *PostgresCache {
	t.Helper()

	port, _ := strconv.Atoi(envOr("POSTGRES_PORT", "5432"))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pg, err := OpenPostgres(ctx, lookup.Tier{}, PostgresConfig{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     port,
		User:     envOr("POSTGRES_USER", "vrscore"),
		Password: envOr("POSTGRES_PASSWORD", "vrscore"),
		Database: envOr("POSTGRES_DB", "vrscore"),
	})
	if err != nil {
		return nil
	}

	// Ensure schema exists.
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil
	}
	t.Cleanup(pg.Close)
	return pg
}

func TestPostgresCache(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}

	checkTierRoundTrip(t, pg)
}

func TestPostgresCacheKeepsNewerOutcome(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	newer := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)
	id := icao.ID(0xFFFFF0)

	saved, err := pg.Write(ctx, aircraft.BatchedLookupOutcome{Found: []aircraft.LookupOutcome{
		{ICAO: id, Success: true, Registration: "NEW", SourceAge: newer},
	}}, true)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !saved {
		t.Error("Write() saved = false, want true")
	}

	_, err = pg.Write(ctx, aircraft.BatchedLookupOutcome{Found: []aircraft.LookupOutcome{
		{ICAO: id, Success: true, Registration: "OLD", SourceAge: older},
	}}, false)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := pg.Read(ctx, []icao.ID{id})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Found) != 1 || got.Found[0].Registration != "NEW" {
		t.Errorf("Found = %+v, want the newer outcome", got.Found)
	}
}
