package aircraft

import (
	"testing"
	"time"
)

func TestBatchedOutcomeSuccessEvictsMiss(t *testing.T) {
	var b BatchedLookupOutcome
	now := time.Now()

	b.Add(Miss(0x000001, now))
	b.Add(Miss(0x000002, now))
	b.Add(LookupOutcome{ICAO: 0x000001, Success: true, Registration: "N1"})

	if len(b.Found) != 1 || b.Found[0].ICAO != 0x000001 {
		t.Fatalf("Found = %+v", b.Found)
	}
	if len(b.Missing) != 1 || b.Missing[0].ICAO != 0x000002 {
		t.Fatalf("Missing = %+v", b.Missing)
	}

	b.Add(Miss(0x000001, now))
	if len(b.Missing) != 1 {
		t.Errorf("miss displaced a success: Missing = %+v", b.Missing)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestBatchedOutcomeMerge(t *testing.T) {
	now := time.Now()
	a := BatchedLookupOutcome{Missing: []LookupOutcome{Miss(0x0000AA, now)}}
	b := BatchedLookupOutcome{
		Found:   []LookupOutcome{{ICAO: 0x0000AA, Success: true}},
		Missing: []LookupOutcome{Miss(0x0000BB, now)},
	}

	a.Merge(b)

	ids := a.MissingIDs()
	if len(ids) != 1 || ids[0] != 0x0000BB {
		t.Errorf("MissingIDs() = %v, want [0000BB]", ids)
	}
	all := a.All()
	if len(all) != 2 || !all[0].Success {
		t.Errorf("All() = %+v, want found first", all)
	}
}
