package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/task"
)

// ContentPrefix starts every payload produced by Simulated.
const ContentPrefix = "Content of "

// Default latency bounds of the simulated fetcher.
const (
	DefaultMinLatency = 100 * time.Millisecond
	DefaultMaxLatency = 500 * time.Millisecond
)

// Simulated pretends to download a page: it waits a random latency and
// returns a payload derived from the key. It performs no I/O.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration
}

// NewSimulated returns a fetcher whose latency is drawn uniformly from
// [minLatency, maxLatency). Equal bounds give a fixed latency.
func NewSimulated(minLatency, maxLatency time.Duration) (*Simulated, error) {
	if minLatency < 0 || maxLatency < minLatency {
		return nil, errors.New("fetch: latency bounds must satisfy 0 <= min <= max")
	}
	return &Simulated{minLatency: minLatency, maxLatency: maxLatency}, nil
}

// Execute implements task.Executor.
func (s *Simulated) Execute(ctx context.Context, key task.Key) (string, error) {
	latency := s.latency()
	ctxlog.FromContext(ctx).Debug("Simulating fetch.", "latency", latency)

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return ContentPrefix + string(key), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Simulated) latency() time.Duration {
	span := s.maxLatency - s.minLatency
	if span <= 0 {
		return s.minLatency
	}
	return s.minLatency + rand.N(span)
}
