package target

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObservationKind classifies a captured navigation attempt
type ObservationKind string

const (
	ObservedWindowOpen ObservationKind = "window-open"
	ObservedPopup      ObservationKind = "popup"
)

// Observation is a navigation that the seam captured instead of performing
type Observation struct {
	Kind ObservationKind `json:"kind"`
	URL  string          `json:"url"`
	At   time.Time       `json:"at"`
}

// CollectFunc drains observations recorded inside the target
type CollectFunc func(ctx context.Context) ([]Observation, error)

// Seam is an installed navigation interceptor scoped to one handle. Restore
// uninstalls it; only the first call does any work.
type Seam struct {
	collect CollectFunc
	restore func() error

	mu           sync.Mutex
	observations []Observation

	once     sync.Once
	restored atomic.Int32
	err      error
}

// NewSeam wraps driver-specific collect and restore functions
func NewSeam(collect CollectFunc, restore func() error) *Seam {
	return &Seam{collect: collect, restore: restore}
}

// Observe records an observation pushed by the driver, e.g. a popup event
func (s *Seam) Observe(o Observation) {
	if s.Restored() {
		return
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	s.mu.Lock()
	s.observations = append(s.observations, o)
	s.mu.Unlock()
}

// Observations drains in-target records and returns everything seen so far
func (s *Seam) Observations(ctx context.Context) []Observation {
	if s.collect != nil && !s.Restored() {
		if drained, err := s.collect(ctx); err == nil {
			s.mu.Lock()
			s.observations = append(s.observations, drained...)
			s.mu.Unlock()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Restore uninstalls the seam. Repeated calls are no-ops returning the first result.
func (s *Seam) Restore() error {
	s.once.Do(func() {
		s.restored.Add(1)
		if s.restore != nil {
			s.err = s.restore()
		}
	})
	return s.err
}

// Restored reports whether Restore has run
func (s *Seam) Restored() bool {
	return s.restored.Load() > 0
}
