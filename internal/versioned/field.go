// Package versioned provides values annotated with the stamp of their last change.
package versioned

import (
	"fmt"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/stamp"
)

// StaleStampError is the panic value raised when a change is applied with a
// stamp that is not newer than the field's own stamp. It indicates the caller
// reused a stamp across two changes.
type StaleStampError struct {
	Current stamp.Stamp
	Offered stamp.Stamp
}

func (e *StaleStampError) Error() string {
	return fmt.Sprintf("versioned: stamp %d is not newer than current stamp %d", e.Offered, e.Current)
}

// Field holds a value and the stamp at which it last changed.
//
// A Field does not lock. Its owner serialises writes and reads so that the
// value and stamp are always observed together.
type Field[T comparable] struct {
	value T
	stamp stamp.Stamp
}

// Value returns the current value.
func (f *Field[T]) Value() T {
	return f.value
}

// Stamp returns the stamp of the last change, or zero if never set.
func (f *Field[T]) Stamp() stamp.Stamp {
	return f.stamp
}

// Get returns the value and its stamp.
func (f *Field[T]) Get() (T, stamp.Stamp) {
	return f.value, f.stamp
}

// ChangedSince reports whether the field changed after s.
func (f *Field[T]) ChangedSince(s stamp.Stamp) bool {
	return f.stamp > s
}

// Set stores value under s. Storing the current value is a no-op and returns
// false. Changing the value with a stamp that is not newer than the field's
// stamp panics with *StaleStampError.
func (f *Field[T]) Set(value T, s stamp.Stamp) bool {
	if value == f.value {
		return false
	}
	if s <= f.stamp {
		panic(&StaleStampError{Current: f.stamp, Offered: s})
	}
	f.value = value
	f.stamp = s
	return true
}

// SetIfNotDefault behaves like Set but ignores the zero value of T, which is
// treated as "no information supplied".
func (f *Field[T]) SetIfNotDefault(value T, s stamp.Stamp) bool {
	var zero T
	if value == zero {
		return false
	}
	return f.Set(value, s)
}

// Copy returns an independent copy of the field.
func (f *Field[T]) Copy() Field[T] {
	return Field[T]{value: f.value, stamp: f.stamp}
}

// TimedField is a Field that also records the wall-clock time of its last
// change. The time is for display only; ordering comes from the stamp.
type TimedField[T comparable] struct {
	Field[T]
	changedAt time.Time
}

// ChangedAt returns the wall-clock time of the last change.
func (f *TimedField[T]) ChangedAt() time.Time {
	return f.changedAt
}

// Set stores value under s and records now as the change time.
func (f *TimedField[T]) Set(value T, s stamp.Stamp, now time.Time) bool {
	if !f.Field.Set(value, s) {
		return false
	}
	f.changedAt = now
	return true
}

// SetIfNotDefault is Set that ignores the zero value of T.
func (f *TimedField[T]) SetIfNotDefault(value T, s stamp.Stamp, now time.Time) bool {
	var zero T
	if value == zero {
		return false
	}
	return f.Set(value, s, now)
}

// Copy returns an independent copy of the field.
func (f *TimedField[T]) Copy() TimedField[T] {
	return TimedField[T]{Field: f.Field.Copy(), changedAt: f.changedAt}
}
