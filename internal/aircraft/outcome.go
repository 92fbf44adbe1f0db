package aircraft

import (
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// LookupOutcome is the result of an enrichment lookup for one aircraft.
type LookupOutcome struct {
	ICAO    icao.ID `json:"icao"`
	Success bool    `json:"success"`

	Registration string `json:"registration,omitempty"`
	Country      string `json:"country,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	ModelICAO    string `json:"model_icao,omitempty"`
	Operator     string `json:"operator,omitempty"`
	OperatorICAO string `json:"operator_icao,omitempty"`
	Serial       string `json:"serial,omitempty"`
	YearBuilt    int    `json:"year_built,omitempty"`
	IsMilitary   bool   `json:"is_military,omitempty"`

	// SourceAge is when the supplier produced the data (or recorded the miss).
	SourceAge time.Time `json:"source_age"`

	// AirPressureLookupAttempted is set when the supplier also tried to find
	// the local air pressure for the aircraft's position.
	AirPressureLookupAttempted bool `json:"air_pressure_lookup_attempted,omitempty"`
}

// Miss returns a failed outcome for id recorded at age.
func Miss(id icao.ID, age time.Time) LookupOutcome {
	return LookupOutcome{ICAO: id, Success: false, SourceAge: age}
}

// BatchedLookupOutcome partitions a set of requested identities into those
// that were found and those that were looked for and missing.
type BatchedLookupOutcome struct {
	Found   []LookupOutcome `json:"found,omitempty"`
	Missing []LookupOutcome `json:"missing,omitempty"`
}

// Len returns the number of outcomes in the batch.
func (b *BatchedLookupOutcome) Len() int {
	return len(b.Found) + len(b.Missing)
}

// All returns found outcomes followed by missing ones.
func (b *BatchedLookupOutcome) All() []LookupOutcome {
	all := make([]LookupOutcome, 0, b.Len())
	all = append(all, b.Found...)
	return append(all, b.Missing...)
}

// MissingIDs returns the identities of the missing outcomes.
func (b *BatchedLookupOutcome) MissingIDs() []icao.ID {
	ids := make([]icao.ID, len(b.Missing))
	for i, o := range b.Missing {
		ids[i] = o.ICAO
	}
	return ids
}

// Add routes o to Found or Missing. A success replaces any miss already held
// for the same identity; a miss never displaces a success.
func (b *BatchedLookupOutcome) Add(o LookupOutcome) {
	if o.Success {
		b.removeMissing(o.ICAO)
		for i := range b.Found {
			if b.Found[i].ICAO == o.ICAO {
				b.Found[i] = o
				return
			}
		}
		b.Found = append(b.Found, o)
		return
	}

	for _, f := range b.Found {
		if f.ICAO == o.ICAO {
			return
		}
	}
	for i := range b.Missing {
		if b.Missing[i].ICAO == o.ICAO {
			b.Missing[i] = o
			return
		}
	}
	b.Missing = append(b.Missing, o)
}

// Merge adds every outcome of other.
func (b *BatchedLookupOutcome) Merge(other BatchedLookupOutcome) {
	for _, o := range other.Found {
		b.Add(o)
	}
	for _, o := range other.Missing {
		b.Add(o)
	}
}

func (b *BatchedLookupOutcome) removeMissing(id icao.ID) {
	for i := range b.Missing {
		if b.Missing[i].ICAO == id {
			b.Missing = append(b.Missing[:i], b.Missing[i+1:]...)
			return
		}
	}
}
