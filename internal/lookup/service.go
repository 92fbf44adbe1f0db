package lookup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/notify"
)

// Applier receives every resolved batch. The state store implements it.
type Applier interface {
	ApplyLookupBatch(aircraft.BatchedLookupOutcome) bool
}

// Config holds service settings. Zero durations take the defaults.
type Config struct {
	// QueueWindow is how long a request may stay unresolved before it
	// completes as a miss.
	QueueWindow time.Duration
	// StaleAfter is the age at which a successful outcome needs refreshing.
	StaleAfter time.Duration
	// MissStaleAfter is the age at which a recorded miss needs refreshing.
	MissStaleAfter time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default service settings.
func DefaultConfig() Config {
	return Config{
		QueueWindow:    20 * time.Minute,
		StaleAfter:     7 * 24 * time.Hour,
		MissStaleAfter: time.Hour,
	}
}

type request struct {
	id       icao.ID
	queuedAt time.Time
	waiters  []chan aircraft.LookupOutcome

	// Only the Run goroutine touches these.
	cacheChecked bool
	stale        *aircraft.LookupOutcome
}

// Service batches lookup requests, answers what it can from the cache chain
// and sends the rest to the provider at the rate the provider allows.
type Service struct {
	provider Provider
	chain    *Chain
	applier  Applier
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time

	staleAfter     atomic.Int64
	missStaleAfter atomic.Int64

	mu      sync.Mutex
	queue   []*request
	pending map[icao.ID]*request
	wake    chan struct{}

	throttle      *throttle
	supplierGroup singleflight.Group
	supplierReady atomic.Bool

	events notify.Fanout[aircraft.BatchedLookupOutcome]
}

// NewService creates a service. chain and applier may be nil.
func NewService(provider Provider, chain *Chain, applier Applier, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.QueueWindow <= 0 {
		cfg.QueueWindow = def.QueueWindow
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.MissStaleAfter <= 0 {
		cfg.MissStaleAfter = def.MissStaleAfter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Service{
		provider: provider,
		chain:    chain,
		applier:  applier,
		logger:   cfg.Logger,
		window:   cfg.QueueWindow,
		now:      time.Now,
		pending:  make(map[icao.ID]*request),
		wake:     make(chan struct{}, 1),
	}
	s.throttle = throttleFor(provider, func() time.Time { return s.now() })
	s.staleAfter.Store(int64(cfg.StaleAfter))
	s.missStaleAfter.Store(int64(cfg.MissStaleAfter))
	return s
}

// Supplier returns the provider's supplier details.
func (s *Service) Supplier() SupplierDetails {
	return s.provider.Supplier()
}

// SetStaleAfter changes the age at which successful outcomes need refreshing.
func (s *Service) SetStaleAfter(d time.Duration) {
	if d > 0 {
		s.staleAfter.Store(int64(d))
	}
}

// SetMissStaleAfter changes the age at which recorded misses need refreshing.
func (s *Service) SetMissStaleAfter(d time.Duration) {
	if d > 0 {
		s.missStaleAfter.Store(int64(d))
	}
}

// NeedsRefresh reports whether o is too old to be used without asking the
// provider again.
func (s *Service) NeedsRefresh(o aircraft.LookupOutcome) bool {
	limit := time.Duration(s.missStaleAfter.Load())
	if o.Success {
		limit = time.Duration(s.staleAfter.Load())
	}
	return s.now().Sub(o.SourceAge) >= limit
}

// Subscribe registers fn to receive every resolved batch. Batches do not
// follow the grouping callers used when queuing.
func (s *Service) Subscribe(fn func(aircraft.BatchedLookupOutcome) error) notify.Token {
	return s.events.Subscribe(fn)
}

// Unsubscribe removes a handler added by Subscribe.
func (s *Service) Unsubscribe(tok notify.Token) bool {
	return s.events.Unsubscribe(tok)
}

// Pending returns the number of identities waiting for an outcome.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Lookup queues id. The outcome is delivered to subscribers.
func (s *Service) Lookup(id icao.ID) {
	s.enqueue([]icao.ID{id}, false)
}

// LookupMany queues ids.
func (s *Service) LookupMany(ids []icao.ID) {
	s.enqueue(ids, false)
}

// LookupAsync queues id and waits for its outcome.
func (s *Service) LookupAsync(ctx context.Context, id icao.ID) (aircraft.LookupOutcome, error) {
	ch := s.enqueue([]icao.ID{id}, true)[0]
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		return aircraft.LookupOutcome{}, ctx.Err()
	}
}

// LookupManyAsync queues ids and waits for all of their outcomes, which are
// returned in the order of ids.
func (s *Service) LookupManyAsync(ctx context.Context, ids []icao.ID) ([]aircraft.LookupOutcome, error) {
	chans := s.enqueue(ids, true)
	out := make([]aircraft.LookupOutcome, len(chans))
	for i, ch := range chans {
		select {
		case out[i] = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (s *Service) enqueue(ids []icao.ID, wait bool) []chan aircraft.LookupOutcome {
	var chans []chan aircraft.LookupOutcome
	if wait {
		chans = make([]chan aircraft.LookupOutcome, len(ids))
	}
	now := s.now()

	s.mu.Lock()
	for i, id := range ids {
		var ch chan aircraft.LookupOutcome
		if wait {
			ch = make(chan aircraft.LookupOutcome, 1)
			chans[i] = ch
		}
		if !id.Valid() {
			if ch != nil {
				ch <- aircraft.Miss(id, now)
			}
			continue
		}
		req, ok := s.pending[id]
		if !ok {
			req = &request{id: id, queuedAt: now}
			s.pending[id] = req
			s.queue = append(s.queue, req)
			requestsQueued.Inc()
		}
		if ch != nil {
			req.waiters = append(req.waiters, ch)
		}
	}
	queueDepth.Set(float64(len(s.pending)))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return chans
}

// Run processes the queue until ctx is done. Only one Run may be active.
func (s *Service) Run(ctx context.Context) error {
	for {
		expired, unchecked, batch := s.nextBatch()
		if expired.Len() > 0 {
			s.complete(expired)
		}
		if len(unchecked) > 0 {
			resolved, err := s.fromCache(ctx, unchecked)
			if err != nil {
				return nil
			}
			if resolved.Len() > 0 {
				s.complete(resolved)
			}
			continue
		}
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				continue
			}
		}
		if s.round(ctx, batch) != nil {
			// Only a finished ctx fails a round.
			return nil
		}
	}
}

// nextBatch removes requests older than the queue window, returning their
// final outcomes. It also returns every request the cache chain has not been
// asked about yet, and up to one provider batch of the rest in FIFO order.
func (s *Service) nextBatch() (expired aircraft.BatchedLookupOutcome, unchecked, batch []*request) {
	now := s.now()
	size := max(1, s.provider.MaxBatchSize())

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.queue {
		switch {
		case now.Sub(req.queuedAt) >= s.window:
			if req.stale != nil {
				expired.Add(*req.stale)
			} else {
				expired.Add(aircraft.Miss(req.id, now))
			}
			expiredRequests.Inc()
		case !req.cacheChecked:
			unchecked = append(unchecked, req)
		case len(batch) < size:
			batch = append(batch, req)
		}
	}
	return expired, unchecked, batch
}

// round sends one batch of cache-checked requests to the provider once the
// throttle allows it. A new request arriving during the wait ends the round
// early so it can be answered from the cache first. round returns an error
// only when ctx ended, in which case nothing was applied.
func (s *Service) round(ctx context.Context, batch []*request) error {
	if d := s.throttle.delay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	s.initialiseSupplier(ctx)

	ids := make([]icao.ID, len(batch))
	for i, req := range batch {
		ids[i] = req.id
	}
	out, err := s.callProvider(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.throttle.failed()
		if IsNetworkError(err) {
			s.logger.Debug("lookup provider unreachable", "batch", len(ids), "error", err)
		} else {
			s.logger.Error("lookup provider failed", "batch", len(ids), "error", err)
		}
		return nil
	}
	s.throttle.succeeded()

	out = s.normalise(ids, out)
	if err := s.chain.Write(ctx, out); err != nil {
		s.logger.Warn("lookup cache write failed", "error", err)
	}
	s.complete(out)
	return nil
}

// fromCache asks the cache chain about requests it has not checked before.
// Fresh answers are returned as resolved. Stale ones are remembered as a
// fallback and the request stays queued for the provider.
func (s *Service) fromCache(ctx context.Context, reqs []*request) (aircraft.BatchedLookupOutcome, error) {
	var resolved aircraft.BatchedLookupOutcome

	ids := make([]icao.ID, len(reqs))
	for i, req := range reqs {
		ids[i] = req.id
	}
	cached, err := s.chain.Read(ctx, ids)
	if err != nil {
		return resolved, err
	}
	byID := make(map[icao.ID]aircraft.LookupOutcome, cached.Len())
	for _, o := range cached.All() {
		byID[o.ICAO] = o
	}

	for _, req := range reqs {
		req.cacheChecked = true

		o, ok := byID[req.id]
		switch {
		case !ok:
			cacheResults.WithLabelValues("none").Inc()
		case s.NeedsRefresh(o):
			cacheResults.WithLabelValues("stale").Inc()
			req.stale = &o
		default:
			cacheResults.WithLabelValues("hit").Inc()
			resolved.Add(o)
		}
	}
	return resolved, nil
}

func (s *Service) callProvider(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	ctx, span := tracer.Start(ctx, "lookup.provider",
		trace.WithAttributes(
			attribute.String("lookup.supplier", s.provider.Supplier().Name),
			attribute.Int("lookup.batch_size", len(ids)),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := s.provider.LookupICAOs(ctx, ids)
	providerLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		providerCalls.WithLabelValues("success").Inc()
		span.SetAttributes(attribute.Int("lookup.found", len(out.Found)))
	case IsNetworkError(err):
		providerCalls.WithLabelValues("network_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		providerCalls.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// normalise keeps only outcomes for ids and records a miss for every id the
// provider did not mention.
func (s *Service) normalise(ids []icao.ID, out aircraft.BatchedLookupOutcome) aircraft.BatchedLookupOutcome {
	asked := make(map[icao.ID]bool, len(ids))
	for _, id := range ids {
		asked[id] = true
	}

	var result aircraft.BatchedLookupOutcome
	now := s.now()
	for _, o := range out.All() {
		if !asked[o.ICAO] {
			continue
		}
		if o.SourceAge.IsZero() {
			o.SourceAge = now
		}
		result.Add(o)
	}
	answered := make(map[icao.ID]bool, result.Len())
	for _, o := range result.All() {
		answered[o.ICAO] = true
	}
	for _, id := range ids {
		if !answered[id] {
			result.Add(aircraft.Miss(id, now))
		}
	}
	return result
}

// complete applies a resolved batch, releases its waiters and notifies
// subscribers.
func (s *Service) complete(batch aircraft.BatchedLookupOutcome) {
	if s.applier != nil {
		s.applier.ApplyLookupBatch(batch)
	}

	type delivery struct {
		ch chan aircraft.LookupOutcome
		o  aircraft.LookupOutcome
	}
	var deliveries []delivery

	s.mu.Lock()
	done := make(map[*request]bool)
	for _, o := range batch.All() {
		req, ok := s.pending[o.ICAO]
		if !ok {
			continue
		}
		delete(s.pending, o.ICAO)
		done[req] = true
		for _, ch := range req.waiters {
			deliveries = append(deliveries, delivery{ch: ch, o: o})
		}
	}
	if len(done) > 0 {
		kept := s.queue[:0]
		for _, req := range s.queue {
			if !done[req] {
				kept = append(kept, req)
			}
		}
		clear(s.queue[len(kept):])
		s.queue = kept
	}
	queueDepth.Set(float64(len(s.pending)))
	s.mu.Unlock()

	// Waiter channels are buffered for exactly one outcome.
	for _, d := range deliveries {
		d.ch <- d.o
	}

	for _, err := range s.events.PublishAll(batch) {
		s.logger.Warn("lookup subscriber failed", "error", err)
	}
}

// initialiseSupplier fetches supplier details once. Failures are logged and
// retried before the next provider call.
func (s *Service) initialiseSupplier(ctx context.Context) {
	if s.supplierReady.Load() {
		return
	}
	_, err, _ := s.supplierGroup.Do("supplier", func() (any, error) {
		if s.supplierReady.Load() {
			return nil, nil
		}
		if err := s.provider.InitialiseSupplierDetails(ctx); err != nil {
			return nil, err
		}
		s.supplierReady.Store(true)
		return nil, nil
	})
	if err != nil && ctx.Err() == nil {
		if IsNetworkError(err) {
			s.logger.Debug("supplier details unavailable", "error", err)
		} else {
			s.logger.Warn("supplier details failed", "error", err)
		}
	}
}
