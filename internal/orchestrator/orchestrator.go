package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trevnoctilla/toolprobe/internal/gate"
	"github.com/trevnoctilla/toolprobe/internal/poll"
	"github.com/trevnoctilla/toolprobe/internal/predicate"
	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/sweep"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// FixtureFetcher resolves the upload fixture for a tool
type FixtureFetcher interface {
	Fetch(ctx context.Context, spec probe.FixtureSpec) (probe.FixtureFile, error)
}

// ArtifactSaver stores a diagnostic capture and returns its artifact ID
type ArtifactSaver interface {
	SaveCapture(ctx context.Context, runID, outcome string, c target.Capture) (string, error)
}

// Options wires an orchestrator's collaborators
type Options struct {
	Driver    target.Driver
	Fixtures  FixtureFetcher
	Artifacts ArtifactSaver
	Publisher result.Publisher
	Notifier  result.Notifier
	// RunID overrides the generated run ID
	RunID string
}

// Orchestrator runs one tool through the state machine
// Idle → ConsentCheck → Ready → Sweeping(1..N) → StaticChecks → Monetizing → Finalizing → Done
type Orchestrator struct {
	tool      probe.Tool
	driver    target.Driver
	fixtures  FixtureFetcher
	artifacts ArtifactSaver
	sink      *result.Sink
	runner    *sweep.Runner
	gate      *gate.Gate
	preds     predicate.Set

	state    probe.RunState
	handle   target.Handle
	fixture  probe.FixtureFile
	injected bool
	// consoleErrors is what the sweep reported; Finalizing adds the rest
	consoleErrors int
	cancelNoted   bool
	log           *logger.Logger
}

// New builds an orchestrator for tool
func New(tool probe.Tool, opts Options) *Orchestrator {
	tool = tool.WithDefaults()
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	o := &Orchestrator{
		tool:      tool,
		driver:    opts.Driver,
		fixtures:  opts.Fixtures,
		artifacts: opts.Artifacts,
		preds:     predicate.NewSet(tool),
		log:       logger.New().WithRun(tool.ID, runID),
	}
	o.sink = result.NewSink(runID, tool.ID,
		result.WithPublisher(opts.Publisher),
		result.WithNotifier(opts.Notifier),
	)
	o.runner = sweep.NewRunner(tool, o)
	o.gate = gate.New(tool, o, o.reacquireAfterRedirect)
	return o
}

// ID returns the run ID
func (o *Orchestrator) ID() string {
	return o.sink.Snapshot().ID
}

// Snapshot returns the live run
func (o *Orchestrator) Snapshot() probe.TestRun {
	return o.sink.Snapshot()
}

// Run drives the tool to Done and returns the final run. It never panics
// and never returns an error; everything becomes an outcome.
func (o *Orchestrator) Run(ctx context.Context) (run probe.TestRun) {
	o.log.Info("Starting run for %s", o.tool)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Run panicked: %v\n%s", r, debug.Stack())
			o.Record(probe.Fail(probe.OutcomeOrchestrator, "internal error: %v", r))
			run = o.finish(ctx)
		}
	}()

	o.setState(probe.StateIdle)
	if !o.prepare(ctx) {
		return o.finish(ctx)
	}

	o.consentCheck(ctx)
	o.ready(ctx)
	sum := o.runner.Run(ctx, o.step, o.fixture, o.tool.Combos)
	o.consoleErrors = sum.ConsoleErrors
	o.staticChecks(ctx)
	o.monetize(ctx)
	return o.finish(ctx)
}

// prepare fetches the fixture and acquires the target. A missing fixture
// ends the run with a single FixtureUnavailable outcome.
func (o *Orchestrator) prepare(ctx context.Context) bool {
	f, err := o.fixtures.Fetch(ctx, o.tool.Fixture)
	if err != nil {
		o.Record(probe.Fail(probe.OutcomeFixtureUnavailable, "%v", err))
		return false
	}
	o.fixture = f

	h, err := o.driver.Acquire(ctx, o.tool.URL)
	if err != nil {
		o.log.Warn("Acquiring %s failed, retrying once: %v", o.tool.URL, err)
		h, err = o.driver.Acquire(ctx, o.tool.URL)
	}
	if err != nil {
		o.Record(probe.Fail(probe.OutcomeTarget, "could not open %s: %v", o.tool.URL, err))
		return false
	}
	o.handle = h
	return true
}

func (o *Orchestrator) consentCheck(ctx context.Context) {
	_ = o.step(ctx, probe.StateConsentCheck, func(ctx context.Context, h target.Handle) error {
		res := poll.AwaitPhase(ctx, h.Snapshot, o.preds.ConsentPresent(), o.tool.Timeouts.Interval,
			time.Now().Add(o.tool.Timeouts.Consent), "")
		if res.Detached() {
			return res.Err
		}
		if res.Cancelled {
			o.Record(probe.Warn(probe.OutcomeConsent, "cancelled while looking for a consent banner"))
			return ctx.Err()
		}
		if !res.Reached {
			o.Record(probe.Info(probe.OutcomeConsent, "no consent banner"))
			return nil
		}
		ref, err := h.Locate(ctx, target.Query{Role: target.RoleAction, Hints: o.tool.Hints.Consent, EnabledOnly: true})
		if err == nil {
			err = h.Click(ctx, ref)
		}
		switch {
		case errors.Is(err, target.ErrTargetDetached):
			return err
		case err != nil:
			o.Record(probe.Warn(probe.OutcomeConsent, "consent banner shown but could not be dismissed: %v", err))
		default:
			o.Record(probe.Pass(probe.OutcomeConsent, "dismissed via %q", ref.Label))
		}
		return nil
	})
}

func (o *Orchestrator) ready(ctx context.Context) {
	_ = o.step(ctx, probe.StateReady, func(ctx context.Context, h target.Handle) error {
		ref, err := o.runner.Inject(ctx, h, o.fixture)
		switch {
		case errors.Is(err, target.ErrTargetDetached):
			return err
		case err != nil:
			o.Record(probe.Fail(probe.OutcomeFileInput, "could not inject %s: %v", o.fixture.Name, err))
		default:
			o.injected = true
			o.Record(probe.Pass(probe.OutcomeFileInput, "injected %s (%s) via %s", o.fixture.Name, o.fixture.MimeType, ref.Hint))
		}
		return nil
	})
}

func (o *Orchestrator) staticChecks(ctx context.Context) {
	_ = o.step(ctx, probe.StateStaticChecks, func(ctx context.Context, h target.Handle) error {
		snap, err := h.Snapshot(ctx)
		if err != nil {
			if errors.Is(err, target.ErrTargetDetached) {
				return err
			}
			if ctx.Err() != nil {
				o.Record(probe.Warn(probe.OutcomeStaticCheck, "cancelled: %v", ctx.Err()))
				return ctx.Err()
			}
			o.Record(probe.Fail(probe.OutcomeStaticCheck, "could not read the page: %v", err))
			return nil
		}
		for _, c := range o.tool.StaticChecks {
			if err := o.staticCheck(ctx, h, snap, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) staticCheck(ctx context.Context, h target.Handle, snap target.Snapshot, c probe.StaticCheck) error {
	name := probe.OutcomeStaticCheck + " " + c.Name
	switch c.Kind {
	case probe.CheckSelectOptions:
		offered, found, err := predicate.SelectOptions(snap, c.Hints)
		switch {
		case err != nil:
			o.Record(probe.Fail(name, "could not parse page: %v", err))
		case !found:
			o.Record(probe.Fail(name, "selector not found"))
		default:
			if missing := predicate.MissingOptions(offered, c.Expect); len(missing) > 0 {
				o.Record(probe.Fail(name, "missing options: %s", strings.Join(missing, ", ")))
			} else {
				o.Record(probe.Pass(name, "offers all %d options", len(c.Expect)))
			}
		}
	case probe.CheckTextPresent:
		var missing []string
		for _, want := range c.Expect {
			if ok, _ := predicate.TextContains(want)(snap); !ok {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			o.Record(probe.Fail(name, "text not found: %s", strings.Join(missing, ", ")))
		} else {
			o.Record(probe.Pass(name, "text present"))
		}
	case probe.CheckControlPresent:
		ref, err := h.Locate(ctx, target.Query{Role: target.RoleAction, Hints: c.Hints})
		switch {
		case errors.Is(err, target.ErrTargetDetached):
			return err
		case err != nil:
			o.Record(probe.Fail(name, "control not found"))
		default:
			o.Record(probe.Pass(name, "found %q", ref.Label))
		}
	default:
		o.Record(probe.Skip(name, "unknown check kind %q", c.Kind))
	}
	return nil
}

func (o *Orchestrator) monetize(ctx context.Context) {
	o.setState(probe.StateMonetizing)
	if !o.tool.Gate.Enabled {
		o.Record(probe.Skip(probe.OutcomeGate, "gate disabled for this tool"))
		return
	}
	res := o.gate.Run(ctx, o.handle)
	if res.Handle != nil {
		o.handle = res.Handle
	}
	if res.Err != nil {
		o.log.Warn("Gate ended with %v", res.Err)
	}
}

// finish releases the target and completes the run. A cancelled run is
// marked as such so it is never announced as a success.
func (o *Orchestrator) finish(ctx context.Context) probe.TestRun {
	o.setState(probe.StateFinalizing)
	if ctx.Err() != nil {
		o.noteCancelled(ctx, probe.StateFinalizing)
		o.sink.Cancel()
	} else if o.handle != nil {
		o.consoleSummary()
	}
	if o.handle != nil {
		if err := o.driver.Release(o.handle); err != nil {
			o.log.Warn("Releasing target failed: %v", err)
		}
		o.handle = nil
	}
	o.setState(probe.StateDone)
	return o.sink.Complete(ctx)
}

// consoleSummary records one run-level Console outcome covering the sweep
// and whatever the page logged after it
func (o *Orchestrator) consoleSummary() {
	rest := o.handle.DrainActivity().Errors(o.tool.Activity.ConsoleIgnore)
	total := o.consoleErrors + len(rest)
	switch {
	case total == 0:
		o.Record(probe.Pass(probe.OutcomeConsole, "no console errors during the run"))
	case len(rest) > 0:
		o.Record(probe.Warn(probe.OutcomeConsole, "%d console error(s) during the run, last: %s", total, rest[len(rest)-1].Text))
	default:
		o.Record(probe.Warn(probe.OutcomeConsole, "%d console error(s) during the sweep", total))
	}
}

// noteCancelled records the cancellation once, against the phase it hit
func (o *Orchestrator) noteCancelled(ctx context.Context, phase probe.RunState) {
	if o.cancelNoted {
		return
	}
	o.cancelNoted = true
	o.log.Warn("Run cancelled during %s: %v", phase, ctx.Err())
	o.Record(probe.Warn(probe.OutcomeCancelled, "run cancelled during %s: %v", phase, ctx.Err()))
}

// step runs fn as phase against the current handle. On detachment it
// re-acquires once, re-injects the fixture if it was already injected, and
// retries fn; a second failure fails the phase. Once ctx has ended no
// further phase runs.
func (o *Orchestrator) step(ctx context.Context, phase probe.RunState, fn func(ctx context.Context, h target.Handle) error) error {
	o.setState(phase)
	if ctx.Err() != nil {
		o.noteCancelled(ctx, phase)
		return ctx.Err()
	}
	err := o.guarded(ctx, fn, o.handle)
	if ctx.Err() != nil && err != nil {
		o.noteCancelled(ctx, phase)
		return err
	}
	if !errors.Is(err, target.ErrTargetDetached) {
		return err
	}

	o.Record(probe.Info(probe.OutcomeTargetDetached, "%s: %v; reloading %s", phase, err, o.tool.URL))
	fresh, rerr := o.driver.Reacquire(ctx, o.handle, o.tool.URL)
	if rerr != nil {
		o.Record(probe.Fail(probe.OutcomeTargetDetached, "%s: recovery failed: %v", phase, rerr))
		return fmt.Errorf("%s: %w", phase, rerr)
	}
	o.handle = fresh

	if o.injected {
		if _, ierr := o.runner.Inject(ctx, fresh, o.fixture); ierr != nil {
			o.Record(probe.Fail(probe.OutcomeTargetDetached, "%s: re-injecting fixture failed: %v", phase, ierr))
			return fmt.Errorf("%s: %w", phase, ierr)
		}
	}

	if err := o.guarded(ctx, fn, fresh); err != nil {
		o.Record(probe.Fail(probe.OutcomeTargetDetached, "%s failed after recovery: %v", phase, err))
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}

// guarded turns a phase panic into an error
func (o *Orchestrator) guarded(ctx context.Context, fn func(ctx context.Context, h target.Handle) error, h target.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Phase panicked: %v\n%s", r, debug.Stack())
			o.Record(probe.Fail(probe.OutcomeOrchestrator, "%s: internal error: %v", o.state, r))
			err = nil
		}
	}()
	if h == nil {
		return fmt.Errorf("%w: no handle", target.ErrTargetDetached)
	}
	return fn(ctx, h)
}

func (o *Orchestrator) setState(s probe.RunState) {
	if o.state == s {
		return
	}
	o.state = s
	o.sink.SetState(s)
}

// Record appends to the run, attaching a capture to FAIL outcomes when an
// artifact store is configured
func (o *Orchestrator) Record(out probe.TestOutcome) probe.TestOutcome {
	if out.Status == probe.StatusFail && o.artifacts != nil && o.handle != nil && out.Artifact == "" {
		out.Artifact = o.capture(out.Name)
	}
	return o.sink.Record(out)
}

func (o *Orchestrator) capture(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := o.handle.Capture(ctx)
	if err != nil && c.Markdown == "" {
		o.log.Debug("No capture for %s: %v", name, err)
		return ""
	}
	id, err := o.artifacts.SaveCapture(ctx, o.sink.Snapshot().ID, name, c)
	if err != nil {
		o.log.Warn("Saving capture for %s failed: %v", name, err)
		return ""
	}
	return id
}

func (o *Orchestrator) reacquireAfterRedirect(ctx context.Context, stale target.Handle) (target.Handle, error) {
	fresh, err := o.driver.Reacquire(ctx, stale, o.tool.URL)
	if err != nil {
		return nil, err
	}
	o.handle = fresh
	return fresh, nil
}

var _ result.Recorder = (*Orchestrator)(nil)
