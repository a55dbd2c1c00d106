package result

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Recorder is the append side of a sink, as seen by the phases
type Recorder interface {
	Record(o probe.TestOutcome) probe.TestOutcome
}

// Publisher receives a deep copy of the run after every change
type Publisher interface {
	Publish(run probe.TestRun)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(run probe.TestRun)

func (f PublisherFunc) Publish(run probe.TestRun) { f(run) }

// MultiPublisher fans a snapshot out to several publishers
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(run probe.TestRun) {
	for _, p := range m {
		if p != nil {
			p.Publish(run.Clone())
		}
	}
}

// Notifier is invoked once for a run that completed without FAIL outcomes
type Notifier interface {
	Notify(ctx context.Context, run probe.TestRun) error
}

// Sink owns one TestRun: it appends outcomes in time order, publishes each
// change and triggers the notifier on completion
type Sink struct {
	mu        sync.Mutex
	run       probe.TestRun
	last      time.Time
	publisher Publisher
	notifier  Notifier
	now       func() time.Time
	log       *logger.Logger
	completed bool
}

var _ Recorder = (*Sink)(nil)

// Option customizes a Sink
type Option func(*Sink)

// WithPublisher sets the live feed publisher
func WithPublisher(p Publisher) Option {
	return func(s *Sink) { s.publisher = p }
}

// WithNotifier sets the completion notifier
func WithNotifier(n Notifier) Option {
	return func(s *Sink) { s.notifier = n }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// NewSink starts an empty run for toolID
func NewSink(runID, toolID string, opts ...Option) *Sink {
	s := &Sink{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.run = probe.NewTestRun(runID, toolID, s.now())
	s.log = logger.New().WithRun(toolID, runID)
	return s
}

// Record stamps o with a timestamp strictly after the previous one, appends
// it and publishes the run. It returns the stored outcome.
func (s *Sink) Record(o probe.TestOutcome) probe.TestOutcome {
	s.mu.Lock()
	ts := s.now()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts
	o.Timestamp = ts
	s.run.Outcomes = append(s.run.Outcomes, o)
	s.run.Counts = probe.CountOutcomes(s.run.Outcomes)
	snapshot := s.run.Clone()
	s.mu.Unlock()

	s.logOutcome(o)
	s.publish(snapshot)
	return o
}

// SetState moves the run to state and publishes it
func (s *Sink) SetState(state probe.RunState) {
	s.mu.Lock()
	s.run.State = state
	snapshot := s.run.Clone()
	s.mu.Unlock()

	s.log.Debug("State -> %s", state)
	s.publish(snapshot)
}

// Cancel marks the run as stopped from outside. A cancelled run is never
// announced, whatever its outcomes.
func (s *Sink) Cancel() {
	s.mu.Lock()
	s.run.Cancelled = true
	snapshot := s.run.Clone()
	s.mu.Unlock()

	s.publish(snapshot)
}

// Snapshot returns a deep copy of the run
func (s *Sink) Snapshot() probe.TestRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Clone()
}

// Complete stamps completion, computes counts and notifies when no outcome
// failed and the run was not cancelled. Notifier errors are logged and never
// returned.
func (s *Sink) Complete(ctx context.Context) probe.TestRun {
	s.mu.Lock()
	if s.completed {
		snapshot := s.run.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.completed = true
	at := s.now()
	s.run.CompletedAt = &at
	s.run.Counts = probe.CountOutcomes(s.run.Outcomes)
	snapshot := s.run.Clone()
	s.mu.Unlock()

	s.publish(snapshot)

	c := snapshot.Counts
	s.log.Info("Run finished: %d pass, %d warn, %d fail, %d skip, %d info",
		c.Pass, c.Warn, c.Fail, c.Skip, c.Info)

	if c.Fail > 0 || s.notifier == nil {
		return snapshot
	}
	if snapshot.Cancelled || ctx.Err() != nil {
		s.log.Info("Run was cancelled, not notifying")
		return snapshot
	}
	if err := s.notifier.Notify(ctx, snapshot); err != nil {
		s.log.Error("%v", fmt.Errorf("%w: %v", probe.ErrNotifierFailure, err))
	}
	return snapshot
}

func (s *Sink) publish(run probe.TestRun) {
	if s.publisher != nil {
		s.publisher.Publish(run)
	}
}

func (s *Sink) logOutcome(o probe.TestOutcome) {
	switch o.Status {
	case probe.StatusFail:
		s.log.Error("[%s] %s: %s", o.Status, o.Name, o.Message)
	case probe.StatusWarn:
		s.log.Warn("[%s] %s: %s", o.Status, o.Name, o.Message)
	default:
		s.log.Info("[%s] %s: %s", o.Status, o.Name, o.Message)
	}
}
