package aircraft

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
)

func ptr[T any](v T) *T { return &v }

func newTestRecord(id icao.ID) (*Record, *stamp.Clock) {
	clock := stamp.NewClock()
	return NewRecord(id, clock), clock
}

func TestMergeReportIsIdempotent(t *testing.T) {
	r, _ := newTestRecord(0x4CA123)
	rep := Report{
		ICAO:        0x4CA123,
		Altitude:    ptr(35000),
		GroundSpeed: ptr(450.5),
		Callsign:    ptr("RYR123"),
		Position:    &Position{Latitude: 51.5, Longitude: -0.1},
	}

	if !r.MergeReport(rep) {
		t.Fatal("first merge reported no change")
	}
	first := r.Stamp()

	if r.MergeReport(rep) {
		t.Error("second identical merge reported a change")
	}
	if r.Stamp() != first {
		t.Errorf("Stamp() = %d after no-op merge, want %d", r.Stamp(), first)
	}
	if r.MessageCount() != 2 {
		t.Errorf("MessageCount() = %d, want 2", r.MessageCount())
	}
}

func TestMergeReportUsesOneStampPerMerge(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{
		ICAO:     0x000001,
		Altitude: ptr(1000),
		Track:    ptr(90.0),
		Squawk:   ptr(7700),
	})

	s := r.Stamp()
	tr := r.Snapshot().Transmitted
	for name, got := range map[string]stamp.Stamp{
		"Altitude":          tr.Altitude.Stamp(),
		"Track":             tr.Track.Stamp(),
		"Squawk":            tr.Squawk.Stamp(),
		"SquawkIsEmergency": tr.SquawkIsEmergency.Stamp(),
	} {
		if got != s {
			t.Errorf("%s stamp = %d, want %d", name, got, s)
		}
	}
}

func TestMergeReportIdentityMismatchPanics(t *testing.T) {
	r, _ := newTestRecord(0xABCDEF)

	defer func() {
		v := recover()
		if v == nil {
			t.Fatal("merge of foreign report did not panic")
		}
		err, ok := v.(error)
		var mismatch *IdentityMismatchError
		if !ok || !errors.As(err, &mismatch) {
			t.Fatalf("panic = %v, want *IdentityMismatchError", v)
		}
		if mismatch.Record != 0xABCDEF || mismatch.Input != 0x123456 {
			t.Errorf("mismatch = %+v", mismatch)
		}
	}()
	r.MergeReport(Report{ICAO: 0x123456, Altitude: ptr(1)})
}

func TestMergeLookupIdentityMismatchPanics(t *testing.T) {
	r, _ := newTestRecord(0xABCDEF)
	defer func() {
		if recover() == nil {
			t.Fatal("merge of foreign outcome did not panic")
		}
	}()
	r.MergeLookup(LookupOutcome{ICAO: 0x000002, Success: true, Registration: "G-ABCD"})
}

func TestSquawkEmergencyDerivation(t *testing.T) {
	tests := []struct {
		squawk int
		want   bool
	}{
		{7500, true},
		{7600, true},
		{7700, true},
		{1200, false},
		{7000, false},
	}
	for _, tt := range tests {
		r, _ := newTestRecord(0x000001)
		r.MergeReport(Report{ICAO: 0x000001, Squawk: ptr(tt.squawk)})
		got := r.Snapshot().Transmitted.SquawkIsEmergency.Value()
		if got != tt.want {
			t.Errorf("squawk %d: SquawkIsEmergency = %v, want %v", tt.squawk, got, tt.want)
		}
	}
}

func TestSquawkEmergencyClears(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{ICAO: 0x000001, Squawk: ptr(7700)})
	r.MergeReport(Report{ICAO: 0x000001, Squawk: ptr(2000)})

	if r.Snapshot().Transmitted.SquawkIsEmergency.Value() {
		t.Error("SquawkIsEmergency still set after squawk changed to 2000")
	}
}

func TestAltitudeDerivedFromPressure(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{
		ICAO:            0x000001,
		Altitude:        ptr(10000),
		AirPressureInHg: ptr(30.42),
	})

	tr := r.Snapshot().Transmitted
	if got := tr.GeometricAltitude.Value(); got != 10500 {
		t.Errorf("GeometricAltitude = %d, want 10500", got)
	}
	if got := tr.AltitudeType.Value(); got != AltitudeBarometric {
		t.Errorf("AltitudeType = %v, want baro", got)
	}

	// Same inputs again: nothing re-derived.
	if r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(10000), AirPressureInHg: ptr(30.42)}) {
		t.Error("repeating the same altitude and pressure reported a change")
	}
}

func TestPressureDerivedFromGeometric(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{
		ICAO:            0x000001,
		Altitude:        ptr(5000),
		AltitudeType:    ptr(AltitudeGeometric),
		AirPressureInHg: ptr(29.42),
	})

	tr := r.Snapshot().Transmitted
	if got := tr.GeometricAltitude.Value(); got != 5000 {
		t.Errorf("GeometricAltitude = %d, want 5000", got)
	}
	if got := tr.Altitude.Value(); got != 5500 {
		t.Errorf("Altitude = %d, want 5500", got)
	}
}

func TestPressureChangeRederivesAltitude(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(8000), AirPressureInHg: ptr(29.92)})
	if got := r.Snapshot().Transmitted.GeometricAltitude.Value(); got != 8000 {
		t.Fatalf("GeometricAltitude = %d, want 8000", got)
	}

	if !r.MergeReport(Report{ICAO: 0x000001, AirPressureInHg: ptr(30.12)}) {
		t.Fatal("pressure change reported no change")
	}
	tr := r.Snapshot().Transmitted
	if got := tr.GeometricAltitude.Value(); got != 8200 {
		t.Errorf("GeometricAltitude = %d, want 8200", got)
	}
	if got := tr.Altitude.Value(); got != 8000 {
		t.Errorf("Altitude = %d, want unchanged 8000", got)
	}
}

func TestAltitudeWithoutPressureIsNotDerived(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(12000)})

	if s := r.Snapshot().Transmitted.GeometricAltitude.Stamp(); s != 0 {
		t.Errorf("GeometricAltitude stamp = %d, want 0 without a pressure reading", s)
	}
}

func TestCallsignIgnoresBlank(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{ICAO: 0x000001, Callsign: ptr("BAW1  ")})
	if r.MergeReport(Report{ICAO: 0x000001, Callsign: ptr("   ")}) {
		t.Error("blank callsign reported a change")
	}
	if got := r.Snapshot().Transmitted.Callsign.Value(); got != "BAW1" {
		t.Errorf("Callsign = %q, want BAW1", got)
	}
}

func TestPositionRecordsChangeTime(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.MergeReport(Report{
		ICAO:       0x000001,
		Position:   &Position{Latitude: 1, Longitude: 2},
		ReceivedAt: at,
	})

	pos := r.Snapshot().Transmitted.Position
	if !pos.ChangedAt().Equal(at) {
		t.Errorf("Position.ChangedAt() = %v, want %v", pos.ChangedAt(), at)
	}
	if !r.FirstSeen().Equal(at) {
		t.Errorf("FirstSeen() = %v, want %v", r.FirstSeen(), at)
	}
}

func TestFirstStampSetOnce(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	if r.FirstStamp() != 0 {
		t.Fatal("FirstStamp() non-zero before any merge")
	}

	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(100)})
	first := r.FirstStamp()
	if first == 0 {
		t.Fatal("FirstStamp() still zero after a changing merge")
	}

	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(200)})
	if r.FirstStamp() != first {
		t.Errorf("FirstStamp() = %d, want unchanged %d", r.FirstStamp(), first)
	}
	if !r.Stamp().After(first) {
		t.Errorf("Stamp() = %d, want after %d", r.Stamp(), first)
	}
}

func TestMergeLookup(t *testing.T) {
	r, _ := newTestRecord(0x400F01)

	if r.MergeLookup(Miss(0x400F01, time.Now())) {
		t.Error("failed outcome reported a change")
	}
	if r.Stamp() != 0 {
		t.Errorf("Stamp() = %d after failed outcome, want 0", r.Stamp())
	}

	ok := LookupOutcome{
		ICAO:         0x400F01,
		Success:      true,
		Registration: "G-EUPT",
		Manufacturer: "Airbus",
		Model:        "A319",
		IsMilitary:   true,
	}
	if !r.MergeLookup(ok) {
		t.Fatal("successful outcome reported no change")
	}
	if r.MergeLookup(ok) {
		t.Error("repeated outcome reported a change")
	}

	// Blank strings leave values alone; IsMilitary=false is applied.
	if !r.MergeLookup(LookupOutcome{ICAO: 0x400F01, Success: true}) {
		t.Error("clearing IsMilitary reported no change")
	}
	e := r.Snapshot().Enrichment
	if e.Registration.Value() != "G-EUPT" {
		t.Errorf("Registration = %q, want G-EUPT", e.Registration.Value())
	}
	if e.IsMilitary.Value() {
		t.Error("IsMilitary still true")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	r, _ := newTestRecord(0x000001)
	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(1000)})

	snap := r.Snapshot()
	r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(2000)})

	if got := snap.Transmitted.Altitude.Value(); got != 1000 {
		t.Errorf("snapshot Altitude = %d, want 1000", got)
	}
	if snap.Stamp() == r.Stamp() {
		t.Error("snapshot stamp followed the live record")
	}

	snap.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(3000)})
	if got := r.Snapshot().Transmitted.Altitude.Value(); got != 2000 {
		t.Errorf("live Altitude = %d after snapshot merge, want 2000", got)
	}
}

func TestConcurrentMergesKeepStampsOrdered(t *testing.T) {
	r, _ := newTestRecord(0x000001)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				r.MergeReport(Report{ICAO: 0x000001, Altitude: ptr(g*1000 + i)})
				r.MergeLookup(LookupOutcome{ICAO: 0x000001, Success: true, YearBuilt: 1990 + i%20})
			}
		}(g)
	}
	wg.Wait()

	if r.MessageCount() != 8*500 {
		t.Errorf("MessageCount() = %d, want %d", r.MessageCount(), 8*500)
	}
}

func TestAltitudeConversions(t *testing.T) {
	if got := GeometricFromPressure(10000, 29.92); got != 10000 {
		t.Errorf("GeometricFromPressure at standard = %d, want 10000", got)
	}
	for _, inHg := range []float64{28.5, 29.92, 30.1, 31.04} {
		geo := GeometricFromPressure(7000, inHg)
		if back := PressureFromGeometric(geo, inHg); back != 7000 {
			t.Errorf("round trip at %v inHg = %d, want 7000", inHg, back)
		}
	}
}
