package aircraft

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
	"github.com/vradarserver/vrscore-sub000/internal/versioned"
)

// IdentityMismatchError is the panic value raised when a report or outcome
// for one aircraft is merged into another aircraft's record.
type IdentityMismatchError struct {
	Record icao.ID
	Input  icao.ID
	Kind   string // "report" or "lookup".
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("aircraft: %s for %s merged into record %s", e.Kind, e.Input, e.Record)
}

// Transmitted holds the values decoded from the aircraft's own transmissions.
type Transmitted struct {
	Altitude          versioned.Field[int] // Pressure altitude, feet.
	GeometricAltitude versioned.Field[int] // Feet.
	AltitudeType      versioned.Field[AltitudeType]
	AirPressureInHg   versioned.Field[float64]
	GroundSpeed       versioned.Field[float64]
	SpeedType         versioned.Field[SpeedType]
	Track             versioned.Field[float64]
	TrackIsHeading    versioned.Field[bool]
	VerticalRate      versioned.Field[int]
	VerticalRateType  versioned.Field[AltitudeType]
	Squawk            versioned.Field[int]
	SquawkIsEmergency versioned.Field[bool]
	Emergency         versioned.Field[bool]
	OnGround          versioned.Field[bool]
	Callsign          versioned.Field[string]
	SignalLevel       versioned.Field[int]
	Position          versioned.TimedField[Position]
	TransponderType   versioned.Field[TransponderType]
	IsTisb            versioned.Field[bool]
}

// Enrichment holds the values supplied by lookups.
type Enrichment struct {
	Registration versioned.Field[string]
	Country      versioned.Field[string]
	Manufacturer versioned.Field[string]
	Model        versioned.Field[string]
	ModelICAO    versioned.Field[string]
	Operator     versioned.Field[string]
	OperatorICAO versioned.Field[string]
	Serial       versioned.Field[string]
	YearBuilt    versioned.Field[int]
	IsMilitary   versioned.Field[bool]
}

// Record is everything known about one aircraft.
//
// A live Record is owned by a store and must only be changed through
// MergeReport and MergeLookup. The exported field groups are meant to be read
// on copies returned by Snapshot.
type Record struct {
	mu    sync.Mutex
	id    icao.ID
	clock *stamp.Clock
	now   func() time.Time

	aggregate  atomic.Uint64
	firstStamp stamp.Stamp
	firstSeen  time.Time
	messages   int64

	Transmitted Transmitted
	Enrichment  Enrichment
}

// NewRecord creates an empty record for id whose changes are stamped by clock.
func NewRecord(id icao.ID, clock *stamp.Clock) *Record {
	return &Record{
		id:    id,
		clock: clock,
		now:   time.Now,
	}
}

// ID returns the aircraft's identity.
func (r *Record) ID() icao.ID {
	return r.id
}

// Stamp returns the stamp of the most recent change to any field. It does
// not lock.
func (r *Record) Stamp() stamp.Stamp {
	return stamp.Stamp(r.aggregate.Load())
}

// ChangedSince reports whether any field changed after s. It does not lock.
func (r *Record) ChangedSince(s stamp.Stamp) bool {
	return r.Stamp() > s
}

// FirstStamp returns the stamp of the first merge that changed the record.
func (r *Record) FirstStamp() stamp.Stamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstStamp
}

// FirstSeen returns the wall-clock time of the first merge that changed the
// record.
func (r *Record) FirstSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstSeen
}

// MessageCount returns the number of reports merged, changed or not.
func (r *Record) MessageCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages
}

// MergeReport applies every field present in rep under a single stamp and
// reports whether anything changed. It panics with *IdentityMismatchError if
// rep is for a different aircraft.
func (r *Record) MergeReport(rep Report) bool {
	if rep.ICAO != r.id {
		panic(&IdentityMismatchError{Record: r.id, Input: rep.ICAO, Kind: "report"})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Issued under the lock so stamps on one record rise in merge order.
	s := r.clock.Next()
	now := rep.ReceivedAt
	if now.IsZero() {
		now = r.now()
	}
	r.messages++

	changed := false
	note := func(c bool) {
		if c {
			changed = true
		}
	}
	t := &r.Transmitted

	driver, haveDriver := AltitudeBarometric, false
	if rep.Altitude != nil {
		driver, haveDriver = AltitudeBarometric, true
		if rep.AltitudeType != nil {
			driver = *rep.AltitudeType
		}
		note(t.AltitudeType.Set(driver, s))
		if driver == AltitudeGeometric {
			note(t.GeometricAltitude.Set(*rep.Altitude, s))
		} else {
			note(t.Altitude.Set(*rep.Altitude, s))
		}
	}
	if rep.AirPressureInHg != nil {
		if t.AirPressureInHg.Set(*rep.AirPressureInHg, s) {
			changed = true
			if !haveDriver {
				driver, haveDriver = t.AltitudeType.Value(), true
			}
		}
	}
	if haveDriver {
		note(deriveAltitude(t, driver, s))
	}

	if rep.GroundSpeed != nil {
		note(t.GroundSpeed.Set(*rep.GroundSpeed, s))
		speedType := SpeedGround
		if rep.SpeedType != nil {
			speedType = *rep.SpeedType
		}
		note(t.SpeedType.Set(speedType, s))
	}
	if rep.Track != nil {
		note(t.Track.Set(*rep.Track, s))
	}
	if rep.TrackIsHeading != nil {
		note(t.TrackIsHeading.Set(*rep.TrackIsHeading, s))
	}
	if rep.VerticalRate != nil {
		note(t.VerticalRate.Set(*rep.VerticalRate, s))
		rateType := AltitudeBarometric
		if rep.VerticalRateType != nil {
			rateType = *rep.VerticalRateType
		}
		note(t.VerticalRateType.Set(rateType, s))
	}
	if rep.Squawk != nil {
		note(t.Squawk.Set(*rep.Squawk, s))
		note(t.SquawkIsEmergency.Set(IsEmergencySquawk(t.Squawk.Value()), s))
	}
	if rep.Emergency != nil {
		note(t.Emergency.Set(*rep.Emergency, s))
	}
	if rep.OnGround != nil {
		note(t.OnGround.Set(*rep.OnGround, s))
	}
	if rep.Callsign != nil {
		note(t.Callsign.SetIfNotDefault(strings.TrimSpace(*rep.Callsign), s))
	}
	if rep.SignalLevel != nil {
		note(t.SignalLevel.Set(*rep.SignalLevel, s))
	}
	if rep.Position != nil {
		note(t.Position.Set(*rep.Position, s, now))
	}
	if rep.TransponderType != nil {
		note(t.TransponderType.SetIfNotDefault(*rep.TransponderType, s))
	}
	if rep.IsTisb != nil {
		note(t.IsTisb.Set(*rep.IsTisb, s))
	}

	if changed {
		r.commit(s, now)
	}
	return changed
}

// MergeLookup applies a successful lookup outcome under a single stamp and
// reports whether anything changed. Failed outcomes change nothing. It panics
// with *IdentityMismatchError if o is for a different aircraft.
func (r *Record) MergeLookup(o LookupOutcome) bool {
	if o.ICAO != r.id {
		panic(&IdentityMismatchError{Record: r.id, Input: o.ICAO, Kind: "lookup"})
	}
	if !o.Success {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.clock.Next()
	changed := false
	note := func(c bool) {
		if c {
			changed = true
		}
	}
	e := &r.Enrichment

	note(e.Registration.SetIfNotDefault(o.Registration, s))
	note(e.Country.SetIfNotDefault(o.Country, s))
	note(e.Manufacturer.SetIfNotDefault(o.Manufacturer, s))
	note(e.Model.SetIfNotDefault(o.Model, s))
	note(e.ModelICAO.SetIfNotDefault(o.ModelICAO, s))
	note(e.Operator.SetIfNotDefault(o.Operator, s))
	note(e.OperatorICAO.SetIfNotDefault(o.OperatorICAO, s))
	note(e.Serial.SetIfNotDefault(o.Serial, s))
	note(e.YearBuilt.SetIfNotDefault(o.YearBuilt, s))
	// A successful lookup is authoritative about military status.
	note(e.IsMilitary.Set(o.IsMilitary, s))

	if changed {
		r.commit(s, r.now())
	}
	return changed
}

// commit records s as the newest change. Callers hold r.mu.
func (r *Record) commit(s stamp.Stamp, now time.Time) {
	if r.firstStamp == 0 {
		r.firstStamp = s
		r.firstSeen = now
	}
	r.aggregate.Store(uint64(s))
}

// Snapshot returns an independent copy of the record. Changes to either the
// copy or the original are never visible through the other.
func (r *Record) Snapshot() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Record{
		id:          r.id,
		clock:       r.clock,
		now:         r.now,
		firstStamp:  r.firstStamp,
		firstSeen:   r.firstSeen,
		messages:    r.messages,
		Transmitted: r.Transmitted,
		Enrichment:  r.Enrichment,
	}
	c.aggregate.Store(r.aggregate.Load())
	return c
}
