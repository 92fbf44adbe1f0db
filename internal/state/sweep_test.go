package state

import (
	"testing"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

func TestSweeperRemovesIdleAircraft(t *testing.T) {
	s := NewStore(nil)
	w := NewSweeper(s, time.Minute, 10*time.Second)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyMessage(aircraft.Report{ICAO: 0x000001, Altitude: intPtr(1000)})
	s.ApplyMessage(aircraft.Report{ICAO: 0x000002, Altitude: intPtr(2000)})

	if n := w.sweep(t0); n != 0 {
		t.Fatalf("first sweep removed %d, want 0", n)
	}

	// Only the second aircraft keeps talking.
	s.ApplyMessage(aircraft.Report{ICAO: 0x000002, Altitude: intPtr(2100)})

	if n := w.sweep(t0.Add(30 * time.Second)); n != 0 {
		t.Fatalf("sweep before expiry removed %d, want 0", n)
	}

	if n := w.sweep(t0.Add(61 * time.Second)); n != 1 {
		t.Fatalf("sweep after expiry removed %d, want 1", n)
	}
	if _, ok := s.Get(icao.ID(0x000001)); ok {
		t.Error("idle aircraft still tracked")
	}
	if _, ok := s.Get(icao.ID(0x000002)); !ok {
		t.Error("active aircraft was removed")
	}
}

func TestRemoveUnchangedSince(t *testing.T) {
	s := NewStore(nil)
	s.ApplyMessage(aircraft.Report{ICAO: 0x000001, Altitude: intPtr(1000)})
	cursor := s.Clock().Current()
	s.ApplyMessage(aircraft.Report{ICAO: 0x000002, Altitude: intPtr(2000)})

	if n := s.RemoveUnchangedSince(cursor); n != 1 {
		t.Errorf("RemoveUnchangedSince = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRemoveWhereKeepsAircraftHeardDuringSweep(t *testing.T) {
	s := NewStore(nil)
	s.ApplyMessage(aircraft.Report{ICAO: 0x000001, Altitude: intPtr(1000)})
	cursor := s.Clock().Current()

	heard := false
	n := s.RemoveWhere(func(r *aircraft.Record) bool {
		if !heard {
			// A report lands after the aircraft was picked for removal.
			heard = true
			if _, changed := s.ApplyMessage(aircraft.Report{ICAO: 0x000001, Altitude: intPtr(1100)}); !changed {
				t.Error("report during sweep did not change the record")
			}
		}
		return !r.ChangedSince(cursor)
	})

	if n != 0 {
		t.Errorf("RemoveWhere() = %d, want 0", n)
	}
	rec, ok := s.Get(icao.ID(0x000001))
	if !ok {
		t.Fatal("aircraft heard during the sweep was removed")
	}
	if got := rec.Transmitted.Altitude.Value(); got != 1100 {
		t.Errorf("Altitude = %d, want 1100", got)
	}
}
