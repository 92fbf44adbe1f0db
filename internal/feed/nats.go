package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds settings for the report subscription.
type NATSConfig struct {
	URL     string
	Subject string
	// Queue, when set, joins a queue group so several instances share the feed.
	Queue  string
	Name   string
	Logger *slog.Logger
}

// NATSSubscriber applies every report published on a subject.
type NATSSubscriber struct {
	cfg    NATSConfig
	sink   Sink
	logger *slog.Logger
	counts counters
}

// NewNATSSubscriber creates a subscriber that applies reports to sink.
func NewNATSSubscriber(cfg NATSConfig, sink Sink) *NATSSubscriber {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "vrscore"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSubscriber{cfg: cfg, sink: sink, logger: logger.With("component", "feed.nats")}
}

// Stats returns what the subscriber has processed so far.
func (s *NATSSubscriber) Stats() Stats {
	return s.counts.stats()
}

// Run connects, subscribes and blocks until ctx is done. The subscription is
// drained before Run returns.
func (s *NATSSubscriber) Run(ctx context.Context) error {
	if s.cfg.Subject == "" {
		return fmt.Errorf("nats: subject is required")
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", s.cfg.URL, err)
	}
	defer nc.Close()

	handler := func(m *nats.Msg) { s.handle(m.Data) }
	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, handler)
	} else {
		sub, err = nc.Subscribe(s.cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", s.cfg.Subject, err)
	}
	s.logger.Info("subscribed", "url", nc.ConnectedUrl(), "subject", s.cfg.Subject, "queue", s.cfg.Queue)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		s.logger.Warn("drain subscription", "error", err)
	}
	s.logger.Info("stopped", "stats", s.Stats().String())
	return nil
}

func (s *NATSSubscriber) handle(data []byte) {
	s.counts.lines.Add(1)
	if err := s.counts.apply(s.sink, data); err != nil {
		s.logger.Debug("skipping message", "error", err)
	}
}
