package stamp

import (
	"sort"
	"sync"
	"testing"
)

func TestClockStartsAtOne(t *testing.T) {
	c := NewClock()
	if got := c.Current(); got != 0 {
		t.Errorf("Current() = %d, want 0", got)
	}
	if got := c.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
	if got := c.Current(); got != 1 {
		t.Errorf("Current() = %d, want 1", got)
	}
}

func TestClockSeeded(t *testing.T) {
	c := NewClockAt(41)
	if got := c.Next(); got != 42 {
		t.Errorf("Next() = %d, want 42", got)
	}
}

func TestClockZeroValue(t *testing.T) {
	var c Clock
	if got := c.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
}

func TestClockConcurrentNextIsStrictlyIncreasing(t *testing.T) {
	const workers = 16
	const perWorker = 2000

	c := NewClock()
	results := make([][]Stamp, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make([]Stamp, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, c.Next())
			}
			results[w] = local
		}(w)
	}
	wg.Wait()

	var all []Stamp
	for _, r := range results {
		// Each goroutine observes its own stamps strictly increasing.
		for i := 1; i < len(r); i++ {
			if r[i] <= r[i-1] {
				t.Fatalf("worker saw %d after %d", r[i], r[i-1])
			}
		}
		all = append(all, r...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate stamp %d", all[i])
		}
	}
	if len(all) != workers*perWorker {
		t.Fatalf("got %d stamps, want %d", len(all), workers*perWorker)
	}
	if all[len(all)-1] != c.Current() {
		t.Errorf("highest stamp = %d, Current() = %d", all[len(all)-1], c.Current())
	}
}

func TestStampAfter(t *testing.T) {
	if !Stamp(2).After(1) {
		t.Error("2.After(1) = false, want true")
	}
	if Stamp(1).After(1) {
		t.Error("1.After(1) = true, want false")
	}
}
