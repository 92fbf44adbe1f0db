package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
)

// RemoveUnchangedSince removes every aircraft with no change after cursor.
func (s *Store) RemoveUnchangedSince(cursor stamp.Stamp) int {
	return s.RemoveWhere(func(r *aircraft.Record) bool {
		return !r.ChangedSince(cursor)
	})
}

type mark struct {
	at    time.Time
	stamp stamp.Stamp
}

// Sweeper removes aircraft that have not changed for a while.
//
// Records carry logical stamps, not times, so the sweeper samples the clock
// on every tick and maps the expiry age back to the stamp that was current
// at that point.
type Sweeper struct {
	store    *Store
	after    time.Duration
	interval time.Duration
	logger   *slog.Logger
	marks    []mark
}

// NewSweeper creates a sweeper that checks every interval and removes
// aircraft idle for longer than after.
func NewSweeper(store *Store, after, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, after: after, interval: interval, logger: store.logger}
}

// Run sweeps until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := w.sweep(now); n > 0 {
				w.logger.Debug("expired idle aircraft", "removed", n, "tracked", w.store.Len())
			}
		}
	}
}

// sweep records the current stamp and removes aircraft unchanged since the
// newest mark at least w.after old.
func (w *Sweeper) sweep(now time.Time) int {
	w.marks = append(w.marks, mark{at: now, stamp: w.store.clock.Current()})

	cutoff := now.Add(-w.after)
	idx := -1
	for i, m := range w.marks {
		if m.at.After(cutoff) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return 0
	}

	cursor := w.marks[idx].stamp
	w.marks = w.marks[idx:]
	return w.store.RemoveUnchangedSince(cursor)
}
