package lookup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

type fakeCache struct {
	Tier
	saves   bool
	readErr error

	mu     sync.Mutex
	data   map[icao.ID]aircraft.LookupOutcome
	asked  [][]icao.ID
	writes []bool
}

func newFakeCache(name string, priority int) *fakeCache {
	return &fakeCache{
		Tier: Tier{Label: name, ReadRank: priority, WriteRank: priority},
		data: make(map[icao.ID]aircraft.LookupOutcome),
	}
}

func (c *fakeCache) put(o aircraft.LookupOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[o.ICAO] = o
}

func (c *fakeCache) askedAbout(id icao.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ids := range c.asked {
		for _, got := range ids {
			if got == id {
				return true
			}
		}
	}
	return false
}

func (c *fakeCache) writeFlags() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.writes...)
}

func (c *fakeCache) Read(_ context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asked = append(c.asked, append([]icao.ID(nil), ids...))
	if c.readErr != nil {
		return aircraft.BatchedLookupOutcome{}, c.readErr
	}
	var out aircraft.BatchedLookupOutcome
	for _, id := range ids {
		if o, ok := c.data[id]; ok {
			out.Add(o)
		}
	}
	return out, nil
}

func (c *fakeCache) Write(_ context.Context, batch aircraft.BatchedLookupOutcome, alreadySaved bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, alreadySaved)
	for _, o := range batch.All() {
		c.data[o.ICAO] = o
	}
	return c.saves, nil
}

type providerCall struct {
	ids []icao.ID
	at  time.Time
}

type fakeProvider struct {
	batchSize int

	mu        sync.Mutex
	known     map[icao.ID]aircraft.LookupOutcome
	failures  []error // returned in order before any success
	alwaysErr error
	calls     []providerCall
	inits     int
}

func newFakeProvider(batchSize int) *fakeProvider {
	return &fakeProvider{batchSize: batchSize, known: make(map[icao.ID]aircraft.LookupOutcome)}
}

func (p *fakeProvider) MaxBatchSize() int                 { return p.batchSize }
func (p *fakeProvider) MinSecondsBetweenRequests() int    { return 1 }
func (p *fakeProvider) MaxSecondsAfterFailedRequest() int { return 4 }

func (p *fakeProvider) Supplier() SupplierDetails {
	return SupplierDetails{Name: "fake", Credits: "test data"}
}

func (p *fakeProvider) InitialiseSupplierDetails(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	return nil
}

func (p *fakeProvider) LookupICAOs(_ context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, providerCall{ids: append([]icao.ID(nil), ids...), at: time.Now()})

	if p.alwaysErr != nil {
		return aircraft.BatchedLookupOutcome{}, p.alwaysErr
	}
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return aircraft.BatchedLookupOutcome{}, err
	}

	var out aircraft.BatchedLookupOutcome
	for _, id := range ids {
		if o, ok := p.known[id]; ok {
			out.Add(o)
		}
	}
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) wasAsked(id icao.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		for _, got := range c.ids {
			if got == id {
				return true
			}
		}
	}
	return false
}

func (p *fakeProvider) providerCalls() []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providerCall(nil), p.calls...)
}

type recordingApplier struct {
	mu      sync.Mutex
	batches []aircraft.BatchedLookupOutcome
}

func (a *recordingApplier) ApplyLookupBatch(b aircraft.BatchedLookupOutcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, b)
	return len(b.Found) > 0
}

func (a *recordingApplier) applied() []aircraft.BatchedLookupOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]aircraft.BatchedLookupOutcome(nil), a.batches...)
}

// startService runs s with a fast throttle until the test ends.
func startService(t *testing.T, s *Service) {
	t.Helper()
	s.throttle = newThrottle(10*time.Millisecond, 40*time.Millisecond, time.Now)
	runService(t, s)
}

// runService runs s with its current throttle until the test ends.
func runService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// hangingProvider blocks every lookup until the caller's context ends.
type hangingProvider struct {
	*fakeProvider
	started chan struct{}
}

func (p *hangingProvider) LookupICAOs(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	p.mu.Lock()
	p.calls = append(p.calls, providerCall{ids: append([]icao.ID(nil), ids...), at: time.Now()})
	p.mu.Unlock()

	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return aircraft.BatchedLookupOutcome{}, &NetworkError{Op: "post batch", Err: ctx.Err()}
}
