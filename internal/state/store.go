// Package state holds the live set of tracked aircraft.
package state

import (
	"log/slog"
	"sync"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/notify"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
)

// Store maps aircraft identities to their records.
//
// Merges hold the store read lock for their duration and then take the
// record's own lock, so merges into different aircraft run in parallel while
// removal waits for every merge in flight. The store lock is always taken
// before a record lock.
type Store struct {
	clock  *stamp.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	aircraft map[icao.ID]*aircraft.Record

	onNew notify.Fanout[icao.ID]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for subscriber failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store whose records are stamped by clock. A nil
// clock gets a fresh one.
func NewStore(clock *stamp.Clock, opts ...Option) *Store {
	if clock == nil {
		clock = stamp.NewClock()
	}
	s := &Store{
		clock:    clock,
		logger:   slog.Default(),
		aircraft: make(map[icao.ID]*aircraft.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the clock that stamps every record in the store.
func (s *Store) Clock() *stamp.Clock {
	return s.clock
}

// OnNewAircraft registers fn to be called with the identity of every aircraft
// the store creates. fn runs on the goroutine that applied the message.
func (s *Store) OnNewAircraft(fn func(icao.ID) error) notify.Token {
	return s.onNew.Subscribe(fn)
}

// RemoveNewAircraftHandler removes a handler added by OnNewAircraft.
func (s *Store) RemoveNewAircraftHandler(tok notify.Token) bool {
	return s.onNew.Unsubscribe(tok)
}

// ApplyMessage merges rep into its aircraft's record, creating the record on
// first sight. Reports with an invalid identity are ignored.
func (s *Store) ApplyMessage(rep aircraft.Report) (isNew, changed bool) {
	if !rep.ICAO.Valid() {
		return false, false
	}

	s.mu.RLock()
	rec, ok := s.aircraft[rep.ICAO]
	if ok {
		changed = rec.MergeReport(rep)
	}
	s.mu.RUnlock()
	if !ok {
		isNew, changed = s.createAndMerge(rep)
	}
	messagesApplied.WithLabelValues(changedLabel(changed)).Inc()

	if isNew {
		for _, err := range s.onNew.PublishAll(rep.ICAO) {
			s.logger.Warn("new aircraft handler failed", "icao", rep.ICAO, "error", err)
		}
	}
	return isNew, changed
}

// ApplyLookup merges a lookup outcome into an existing record. Outcomes for
// unknown aircraft and failed outcomes change nothing.
func (s *Store) ApplyLookup(o aircraft.LookupOutcome) bool {
	if !o.Success {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.aircraft[o.ICAO]
	if !ok {
		return false
	}
	return rec.MergeLookup(o)
}

// ApplyLookupBatch applies every successful outcome in b and reports whether
// any of them changed a record.
func (s *Store) ApplyLookupBatch(b aircraft.BatchedLookupOutcome) bool {
	changed := false
	for _, o := range b.Found {
		if s.ApplyLookup(o) {
			changed = true
		}
	}
	return changed
}

// Get returns a copy of the record for id.
func (s *Store) Get(id icao.ID) (*aircraft.Record, bool) {
	s.mu.RLock()
	rec, ok := s.aircraft[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return rec.Snapshot(), true
}

// Len returns the number of tracked aircraft.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aircraft)
}

// Snapshot returns an independent copy of every record. Each copy is
// internally consistent; the set as a whole is not taken atomically.
func (s *Store) Snapshot() []*aircraft.Record {
	recs := s.records()
	out := make([]*aircraft.Record, len(recs))
	for i, rec := range recs {
		out[i] = rec.Snapshot()
	}
	return out
}

// ChangedSince returns copies of the records that changed after since.
//
// A caller that reads Clock().Current() before calling ChangedSince can use
// that value as its next cursor without missing a change. Stamps are issued
// under the record lock, so a merge holding an older stamp is either finished
// or still holds the lock that Snapshot waits on.
func (s *Store) ChangedSince(since stamp.Stamp) []*aircraft.Record {
	var out []*aircraft.Record
	for _, rec := range s.records() {
		if snap := rec.Snapshot(); snap.ChangedSince(since) {
			out = append(out, snap)
		}
	}
	return out
}

// Remove stops tracking id.
func (s *Store) Remove(id icao.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aircraft[id]; !ok {
		return false
	}
	delete(s.aircraft, id)
	trackedAircraft.Dec()
	return true
}

// RemoveWhere removes every record for which pred returns true and returns
// how many were removed. pred sees a copy of each record.
//
// A record pred selects is checked again under the store write lock, after
// every merge in flight has finished, so a report that arrives while the
// sweep runs keeps its aircraft. pred runs under that lock and must not call
// back into the store.
func (s *Store) RemoveWhere(pred func(*aircraft.Record) bool) int {
	var doomed []*aircraft.Record
	for _, rec := range s.records() {
		if pred(rec.Snapshot()) {
			doomed = append(doomed, rec)
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, rec := range doomed {
		// The record may have been removed and recreated since pred ran.
		if s.aircraft[rec.ID()] != rec || !pred(rec.Snapshot()) {
			continue
		}
		delete(s.aircraft, rec.ID())
		removed++
	}
	trackedAircraft.Sub(float64(removed))
	return removed
}

// createAndMerge merges rep under the store write lock, creating the record
// if no other goroutine has done so first. The merge happens before the lock
// is released so a sweep never sees the record empty.
func (s *Store) createAndMerge(rep aircraft.Report) (isNew, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.aircraft[rep.ICAO]
	if !ok {
		rec = aircraft.NewRecord(rep.ICAO, s.clock)
		s.aircraft[rep.ICAO] = rec
		trackedAircraft.Inc()
		isNew = true
	}
	return isNew, rec.MergeReport(rep)
}

func (s *Store) records() []*aircraft.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*aircraft.Record, 0, len(s.aircraft))
	for _, rec := range s.aircraft {
		out = append(out, rec)
	}
	return out
}
