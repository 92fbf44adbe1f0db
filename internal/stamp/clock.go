// Package stamp provides the logical clock that versions every change made to
// tracked aircraft state.
package stamp

import "sync/atomic"

// Stamp is a totally ordered version token. Zero means "never set".
type Stamp uint64

// After reports whether s was issued after o.
func (s Stamp) After(o Stamp) bool {
	return s > o
}

// Clock issues strictly increasing stamps. The zero value is ready to use and
// its first stamp is 1.
type Clock struct {
	last atomic.Uint64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first stamp is seed+1.
func NewClockAt(seed Stamp) *Clock {
	c := &Clock{}
	c.last.Store(uint64(seed))
	return c
}

// Next returns a stamp greater than every stamp previously returned by c.
func (c *Clock) Next() Stamp {
	return Stamp(c.last.Add(1))
}

// Current returns the most recently issued stamp, or zero if none has been
// issued. Readers use it as a "changed since" cursor.
func (c *Clock) Current() Stamp {
	return Stamp(c.last.Load())
}
