package lookup

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// throttle schedules provider calls. After a success the next call may start
// minGap later; after each consecutive failure the gap doubles up to maxGap.
//
// The schedule is an absolute time rather than a token bucket so the minimum
// gap holds exactly. A throttle is used by one goroutine.
type throttle struct {
	minGap  time.Duration
	backoff *backoff.ExponentialBackOff
	next    time.Time
	now     func() time.Time
}

func newThrottle(minGap, maxGap time.Duration, now func() time.Time) *throttle {
	if maxGap < minGap {
		maxGap = minGap
	}
	if now == nil {
		now = time.Now
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     min(minGap*2, maxGap),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxGap,
	}
	b.Reset()
	return &throttle{minGap: minGap, backoff: b, now: now}
}

// throttleFor builds the throttle a provider asks for.
func throttleFor(p Provider, now func() time.Time) *throttle {
	minGap := time.Duration(max(1, p.MinSecondsBetweenRequests())) * time.Second
	maxGap := time.Duration(p.MaxSecondsAfterFailedRequest()) * time.Second
	return newThrottle(minGap, maxGap, now)
}

// delay returns how long to wait before the next call may start.
func (t *throttle) delay() time.Duration {
	return max(0, t.next.Sub(t.now()))
}

// succeeded records a successful call that has just finished.
func (t *throttle) succeeded() {
	t.backoff.Reset()
	t.next = t.now().Add(t.minGap)
}

// failed records a failed call and pushes the next slot out.
func (t *throttle) failed() {
	gap := max(t.backoff.NextBackOff(), t.minGap)
	t.next = t.now().Add(gap)
}
