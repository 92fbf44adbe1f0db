// Package storage provides the lookup cache tiers: an in-process LRU, an
// embedded Badger store, a local SQLite database, a shared PostgreSQL
// database and a ClickHouse history table.
package storage

import (
	"strings"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// outcomeColumns is the column list shared by the SQL tiers, in scan order.
const outcomeColumns = `icao, success, registration, country, manufacturer, model, model_icao,
	operator, operator_icao, serial, year_built, is_military, source_age, air_pressure_attempted`

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// outcomeValues returns o's column values in outcomeColumns order, with age
// standing in for the source time so each tier can encode it natively.
func outcomeValues(o aircraft.LookupOutcome, age any) []any {
	return []any{
		o.ICAO.String(), o.Success, o.Registration, o.Country, o.Manufacturer, o.Model, o.ModelICAO,
		o.Operator, o.OperatorICAO, o.Serial, o.YearBuilt, o.IsMilitary, age, o.AirPressureLookupAttempted,
	}
}

// scanOutcome reads one outcomeColumns row. age receives the source time.
func scanOutcome(r rowScanner, age any) (aircraft.LookupOutcome, error) {
	var o aircraft.LookupOutcome
	var hex string
	err := r.Scan(
		&hex, &o.Success, &o.Registration, &o.Country, &o.Manufacturer, &o.Model, &o.ModelICAO,
		&o.Operator, &o.OperatorICAO, &o.Serial, &o.YearBuilt, &o.IsMilitary, age, &o.AirPressureLookupAttempted,
	)
	if err != nil {
		return o, err
	}
	id, err := icao.Parse(hex, icao.ParseOptions{Strict: true})
	if err != nil {
		return o, err
	}
	o.ICAO = id
	return o, nil
}

func hexes(ids []icao.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
