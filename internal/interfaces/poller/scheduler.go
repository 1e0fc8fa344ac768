package poller

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultMinInterval = 45 * time.Second
	DefaultMaxInterval = 120 * time.Second
)

// Scheduler picks the delay before the next scan cycle.
type Scheduler struct {
	Min time.Duration
	Max time.Duration

	rng *rand.Rand
}

func NewScheduler(minInterval, maxInterval time.Duration) *Scheduler {
	return NewSchedulerWithSource(minInterval, maxInterval, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewSchedulerWithSource uses src for randomness so that sequences are reproducible.
func NewSchedulerWithSource(minInterval, maxInterval time.Duration, src rand.Source) *Scheduler {
	switch {
	case minInterval <= 0:
		minInterval = DefaultMinInterval
	case minInterval < time.Millisecond:
		minInterval = time.Millisecond
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &Scheduler{Min: minInterval, Max: maxInterval, rng: rand.New(src)}
}

// Next returns a delay drawn uniformly from [Min, Max] in whole milliseconds.
func (s *Scheduler) Next() time.Duration {
	lo := s.Min.Milliseconds()
	hi := s.Max.Milliseconds()
	return time.Duration(lo+s.rng.Int64N(hi-lo+1)) * time.Millisecond
}
