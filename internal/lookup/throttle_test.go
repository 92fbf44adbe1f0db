package lookup

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottleKeepsMinimumGap(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := newThrottle(5*time.Second, time.Minute, clock.now)

	var calls []time.Time
	for i := 0; i < 25; i++ {
		clock.advance(th.delay())
		calls = append(calls, clock.now())

		// Calls take a varying amount of time and some fail.
		clock.advance(time.Duration(i%4) * 700 * time.Millisecond)
		if i%5 == 3 {
			th.failed()
		} else {
			th.succeeded()
		}
	}

	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < 5*time.Second {
			t.Errorf("calls %d and %d are %v apart, want at least 5s", i-1, i, gap)
		}
	}
}

func TestThrottleBacksOffAndResets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := newThrottle(5*time.Second, time.Minute, clock.now)

	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, time.Minute, time.Minute}
	for i, w := range want {
		th.failed()
		got := th.delay()
		if got < w || got-w > time.Millisecond {
			t.Errorf("failure %d: delay = %v, want %v", i+1, got, w)
		}
		clock.advance(got)
	}

	th.succeeded()
	if got := th.delay(); got != 5*time.Second {
		t.Errorf("delay after success = %v, want 5s", got)
	}
	clock.advance(5 * time.Second)

	th.failed()
	if got := th.delay(); got < 10*time.Second || got > 10*time.Second+time.Millisecond {
		t.Errorf("first failure after reset: delay = %v, want 10s", got)
	}
}

func TestThrottleFirstCallIsImmediate(t *testing.T) {
	th := newThrottle(time.Second, 0, nil)
	if d := th.delay(); d != 0 {
		t.Errorf("delay() = %v before any call, want 0", d)
	}
}

func TestThrottleForClampsProviderSettings(t *testing.T) {
	p := &clampProvider{fakeProvider: newFakeProvider(10)}
	th := throttleFor(p, nil)
	if th.minGap != time.Second {
		t.Errorf("minGap = %v, want 1s", th.minGap)
	}
	if th.backoff.MaxInterval != time.Second {
		t.Errorf("MaxInterval = %v, want 1s", th.backoff.MaxInterval)
	}
}

type clampProvider struct {
	*fakeProvider
}

func (clampProvider) MinSecondsBetweenRequests() int    { return 0 }
func (clampProvider) MaxSecondsAfterFailedRequest() int { return 0 }
