package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
)

// Sink receives decoded reports. state.Store satisfies it.
type Sink interface {
	ApplyMessage(rep aircraft.Report) (isNew, changed bool)
}

// Stats counts what a feed has processed.
type Stats struct {
	Lines   int64 `json:"lines"`
	Applied int64 `json:"applied"`
	New     int64 `json:"new"`
	Changed int64 `json:"changed"`
	Skipped int64 `json:"skipped"`
}

func (s Stats) String() string {
	return fmt.Sprintf("lines=%d applied=%d new=%d changed=%d skipped=%d",
		s.Lines, s.Applied, s.New, s.Changed, s.Skipped)
}

// counters is the concurrent form of Stats.
type counters struct {
	lines, applied, created, changed, skipped atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Lines:   c.lines.Load(),
		Applied: c.applied.Load(),
		New:     c.created.Load(),
		Changed: c.changed.Load(),
		Skipped: c.skipped.Load(),
	}
}

// apply decodes one document and hands it to sink.
func (c *counters) apply(sink Sink, b []byte) error {
	rep, err := Decode(b)
	if err != nil {
		c.skipped.Add(1)
		messagesReceived.WithLabelValues("invalid").Inc()
		return err
	}
	isNew, changed := sink.ApplyMessage(rep)
	c.applied.Add(1)
	messagesReceived.WithLabelValues("applied").Inc()
	if isNew {
		c.created.Add(1)
	}
	if changed {
		c.changed.Add(1)
	}
	return nil
}

// ReadJSONL applies one report per line from r until EOF or ctx is done.
// Lines that do not decode are counted and skipped.
func ReadJSONL(ctx context.Context, r io.Reader, sink Sink) (Stats, error) {
	scanner := bufio.NewScanner(r)
	// JSON lines can be long; bump buffer.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var c counters
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return c.stats(), err
		}
		c.lines.Add(1)
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		_ = c.apply(sink, []byte(line))
	}

	if err := scanner.Err(); err != nil {
		return c.stats(), fmt.Errorf("read input: %w", err)
	}
	return c.stats(), nil
}
