package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trevnoctilla/toolprobe/internal/predicate"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Sampler takes one snapshot of the target
type Sampler func(ctx context.Context) (target.Snapshot, error)

// Result reports how a poll ended
type Result struct {
	Reached bool
	Elapsed time.Duration
	Samples int
	// Last is the most recent successful snapshot
	Last target.Snapshot
	// Err is the error of the most recent failed sample, if any
	Err error
	// Cancelled is set when the caller's context ended before the deadline
	Cancelled bool
}

// Detached reports whether the last sample failed because the handle went stale
func (r Result) Detached() bool {
	return !r.Reached && errors.Is(r.Err, target.ErrTargetDetached)
}

// Deadline binds an absolute time bound to the outcome recorded when it passes
type Deadline struct {
	At      time.Time
	Outcome probe.TestOutcome
}

// NewDeadline starts a deadline timeout from now
func NewDeadline(timeout time.Duration, onHang probe.TestOutcome) Deadline {
	return Deadline{At: time.Now().Add(timeout), Outcome: onHang}
}

// Remaining is the time left, never negative
func (d Deadline) Remaining() time.Duration {
	if r := time.Until(d.At); r > 0 {
		return r
	}
	return 0
}

var log = logger.New().With("component", "poll")

// AwaitPhase samples the target every interval until pred holds or the
// deadline passes. The first sample is taken one interval after the call; a
// deadline closer than one interval yields exactly one sample, at the
// deadline. Sample errors and predicate errors count as "not yet".
func AwaitPhase(ctx context.Context, sample Sampler, pred predicate.Predicate, interval time.Duration, deadline time.Time, onHang string) Result {
	start := time.Now()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	res := Result{}
	timer := time.NewTimer(nextWait(start, interval, deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(start)
			res.Cancelled = true
			if res.Err == nil {
				res.Err = ctx.Err()
			}
			return res
		case <-timer.C:
		}

		res.Samples++
		snap, err := sample(ctx)
		if err != nil {
			res.Err = err
		} else {
			res.Last = snap
			ok, perr := predicate.Eval(pred, snap)
			if perr != nil {
				log.Debug("Predicate error on sample %d: %v", res.Samples, perr)
			}
			if ok {
				res.Reached = true
				res.Err = nil
				res.Elapsed = time.Since(start)
				return res
			}
		}

		now := time.Now()
		if !now.Before(deadline) {
			res.Elapsed = now.Sub(start)
			if onHang != "" {
				log.Warn("%s (after %v, %d samples)", onHang, res.Elapsed.Round(time.Millisecond), res.Samples)
			}
			return res
		}
		timer.Reset(nextWait(now, interval, deadline))
	}
}

// nextWait is one interval, clipped so the last sample lands on the deadline
func nextWait(now time.Time, interval time.Duration, deadline time.Time) time.Duration {
	left := deadline.Sub(now)
	if left < interval {
		if left < 0 {
			return 0
		}
		return left
	}
	return interval
}

// Guard runs fn under a context bounded by timeout and reports whether the
// bound fired before fn returned. fn must honour its context.
func Guard(ctx context.Context, timeout time.Duration, fn func(ctx context.Context)) (timedOut bool) {
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fn(gctx)
	return gctx.Err() == context.DeadlineExceeded && ctx.Err() == nil
}

// Sleep waits d or until ctx ends
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Timeout wraps ErrPhaseTimeout with the phase name
func Timeout(phase string, after time.Duration) error {
	return fmt.Errorf("%s: %w after %v", phase, probe.ErrPhaseTimeout, after.Round(time.Millisecond))
}
