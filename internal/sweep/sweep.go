package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trevnoctilla/toolprobe/internal/poll"
	"github.com/trevnoctilla/toolprobe/internal/predicate"
	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Stepper runs fn as the given phase against the current handle. The
// orchestrator supplies it; it owns state changes and detachment recovery.
type Stepper func(ctx context.Context, phase probe.RunState, fn func(ctx context.Context, h target.Handle) error) error

// Summary counts what one sweep did
type Summary struct {
	Cycles    int
	Resets    int
	Passed    int
	Warned    int
	Failed    int
	Cancelled int
	// ConsoleErrors counts console errors not covered by the ignore list
	ConsoleErrors int
}

// Runner drives one convert cycle per combo
type Runner struct {
	tool  probe.Tool
	preds predicate.Set
	rec   result.Recorder
	log   *logger.Logger
}

// NewRunner prepares a runner for tool, recording into rec
func NewRunner(tool probe.Tool, rec result.Recorder) *Runner {
	tool = tool.WithDefaults()
	return &Runner{
		tool:  tool,
		preds: predicate.NewSet(tool),
		rec:   rec,
		log:   logger.New().With("tool", tool.ID).With("component", "sweep"),
	}
}

// Run performs len(combos) convert cycles, resetting and re-injecting the
// fixture between consecutive combos only. It records one terminal Sweep
// outcome and never returns an error; a phase that the stepper gave up on is
// counted as failed and the sweep advances. Once ctx ends, the current and
// remaining combos count as cancelled.
//
// The stepper may run a combo's step a second time after it recovered from
// detachment. The reload has already cleared the page and the stepper
// re-injects the fixture, so the retry skips the reset.
func (r *Runner) Run(ctx context.Context, step Stepper, fixture probe.FixtureFile, combos []probe.FormatCombo) Summary {
	var sum Summary
	for i, combo := range combos {
		verdict := probe.StatusPass
		attempts := 0
		err := step(ctx, probe.SweepingState(i+1), func(ctx context.Context, h target.Handle) error {
			attempts++
			verdict = probe.StatusPass
			if i > 0 && attempts == 1 {
				if err := r.Reset(ctx, h, fixture, combo); err != nil {
					return err
				}
			}
			v, err := r.cycle(ctx, h, combo)
			verdict = v
			if err == nil {
				sum.ConsoleErrors += r.recordActivity(h, combo.String())
			}
			return err
		})
		if attempts > 0 {
			sum.Cycles++
			if i > 0 {
				sum.Resets++
			}
		}

		switch {
		case err != nil && ctx.Err() != nil:
			sum.Cancelled++
		case err != nil:
			sum.Failed++
		case verdict == probe.StatusPass:
			sum.Passed++
		case verdict == probe.StatusWarn:
			sum.Warned++
		default:
			sum.Failed++
		}
	}

	msg := fmt.Sprintf("%d/%d combos passed, %d warned, %d failed (%d resets)",
		sum.Passed, len(combos), sum.Warned, sum.Failed, sum.Resets)
	if sum.Cancelled > 0 {
		msg = fmt.Sprintf("%d/%d combos passed, %d warned, %d failed, %d cancelled (%d resets)",
			sum.Passed, len(combos), sum.Warned, sum.Failed, sum.Cancelled, sum.Resets)
	}
	switch {
	case sum.Failed > 0:
		r.rec.Record(probe.Fail(probe.OutcomeSweep, "%s", msg))
	case sum.Warned > 0 || sum.Cancelled > 0:
		r.rec.Record(probe.Warn(probe.OutcomeSweep, "%s", msg))
	default:
		r.rec.Record(probe.Pass(probe.OutcomeSweep, "%s", msg))
	}
	return sum
}

// recordActivity reports the converter requests and console errors the combo
// caused and returns the number of console errors
func (r *Runner) recordActivity(h target.Handle, label string) int {
	a := h.DrainActivity()
	spec := r.tool.Activity

	if reqs := a.Matching(spec.Requests); len(reqs) > 0 {
		r.rec.Record(probe.Info(probe.OutcomeNetwork+" "+label, "%s", target.DescribeRequests(reqs)))
	} else {
		r.rec.Record(probe.Info(probe.OutcomeNetwork+" "+label, "no converter requests observed"))
	}

	errs := a.Errors(spec.ConsoleIgnore)
	if noise := len(a.Console) - len(errs); noise > 0 {
		r.log.Debug("Ignored %d known console messages for %s", noise, label)
	}
	if len(errs) > 0 {
		r.rec.Record(probe.Warn(probe.OutcomeConsole+" "+label, "%d console error(s), first: %s", len(errs), errs[0].Text))
	}
	return len(errs)
}

// stop reports whether err must end the current step. Detachment is
// returned as is for the stepper to recover; cancellation is recorded
// against name and returned.
func (r *Runner) stop(ctx context.Context, name string, err error) error {
	if errors.Is(err, target.ErrTargetDetached) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		r.rec.Record(probe.Warn(name, "cancelled: %v", cerr))
		return cerr
	}
	return nil
}

// Inject locates the file input and hands it the fixture
func (r *Runner) Inject(ctx context.Context, h target.Handle, fixture probe.FixtureFile) (target.ElementRef, error) {
	ref, err := h.Locate(ctx, target.Query{Role: target.RoleFileInput, Hints: r.tool.Hints.FileInput})
	if err != nil {
		return target.ElementRef{}, err
	}
	if err := h.SetFiles(ctx, ref, fixture); err != nil {
		return ref, err
	}
	return ref, nil
}

// Reset clears the previous result and re-injects the fixture. Without a
// reset control the fixture is injected over the current state.
func (r *Runner) Reset(ctx context.Context, h target.Handle, fixture probe.FixtureFile, next probe.FormatCombo) error {
	name := probe.OutcomeReset + " " + next.String()
	ref, err := h.Locate(ctx, target.Query{
		Role:        target.RoleAction,
		Hints:       r.tool.Hints.Reset,
		EnabledOnly: true,
	})
	if serr := r.stop(ctx, name, err); serr != nil {
		return serr
	}
	if err != nil {
		r.rec.Record(probe.Info(name, "no reset control found, re-uploading over current state"))
	} else if err := h.Click(ctx, ref); err != nil {
		if serr := r.stop(ctx, name, err); serr != nil {
			return serr
		}
		r.rec.Record(probe.Warn(name, "reset control %q could not be clicked: %v", ref.Label, err))
	} else {
		res := poll.AwaitPhase(ctx, h.Snapshot, r.preds.FileInputPresent(), r.tool.Timeouts.Interval,
			time.Now().Add(r.tool.Timeouts.Reset), "file input did not return after reset")
		if res.Detached() {
			return res.Err
		}
		if res.Cancelled {
			r.rec.Record(probe.Warn(name, "cancelled after %v while waiting for the file input", res.Elapsed.Round(time.Millisecond)))
			return ctx.Err()
		}
	}

	if _, err := r.Inject(ctx, h, fixture); err != nil {
		if serr := r.stop(ctx, name, err); serr != nil {
			return serr
		}
		r.rec.Record(probe.Fail(name, "re-upload failed: %v", err))
		return nil
	}
	r.rec.Record(probe.Pass(name, "reset and re-uploaded %s", fixture.Name))
	return nil
}

// cycle configures, converts and verifies one combo. Only detachment and
// cancellation are returned as errors; everything else becomes an outcome.
func (r *Runner) cycle(ctx context.Context, h target.Handle, combo probe.FormatCombo) (probe.Status, error) {
	label := combo.String()
	verdict := probe.StatusPass
	worsen := func(s probe.Status) {
		if rank(s) > rank(verdict) {
			verdict = s
		}
	}

	selects := []struct {
		outcome string
		hints   []string
		value   string
	}{
		{probe.OutcomeFormatSelect, r.tool.Hints.FormatSelect, combo.Format},
		{probe.OutcomeQualitySelect, r.tool.Hints.QualitySelect, combo.Quality},
		{probe.OutcomeCompressionSelect, r.tool.Hints.CompressionSelect, combo.Compression},
	}
	for _, s := range selects {
		if s.value == "" {
			continue
		}
		status, err := r.choose(ctx, h, s.outcome+" "+label, s.hints, s.value)
		if err != nil {
			return probe.StatusFail, err
		}
		worsen(status)
	}

	trigger, err := h.Locate(ctx, target.Query{
		Role:        target.RoleButton,
		Hints:       r.tool.Hints.Trigger,
		Exclude:     r.tool.Hints.TriggerExclude,
		EnabledOnly: true,
	})
	if err != nil {
		if serr := r.stop(ctx, probe.OutcomeConvert+" "+label, err); serr != nil {
			return probe.StatusFail, serr
		}
		r.rec.Record(probe.Fail(probe.OutcomeConvert+" "+label, "no conversion trigger found: %v", err))
		return probe.StatusFail, nil
	}
	if err := h.Click(ctx, trigger); err != nil {
		if serr := r.stop(ctx, probe.OutcomeConvert+" "+label, err); serr != nil {
			return probe.StatusFail, serr
		}
		r.rec.Record(probe.Fail(probe.OutcomeConvert+" "+label, "clicking %q failed: %v", trigger.Label, err))
		return probe.StatusFail, nil
	}
	r.rec.Record(probe.Pass(probe.OutcomeConvert+" "+label, "clicked %q", trigger.Label))

	to := r.tool.Timeouts
	up := poll.AwaitPhase(ctx, h.Snapshot, r.preds.UploadPhaseDone(), to.Interval,
		time.Now().Add(to.Upload), "upload phase for "+label+" did not finish")
	switch {
	case up.Detached():
		return probe.StatusFail, up.Err
	case up.Cancelled:
		r.rec.Record(probe.Warn(probe.OutcomeUpload+" "+label, "cancelled after %v", up.Elapsed.Round(time.Millisecond)))
		return probe.StatusWarn, ctx.Err()
	case up.Reached:
		r.rec.Record(probe.Pass(probe.OutcomeUpload+" "+label, "upload finished after %v", up.Elapsed.Round(time.Millisecond)))
	default:
		worsen(probe.StatusWarn)
		r.rec.Record(probe.Warn(probe.OutcomeUpload+" "+label, "%v", poll.Timeout("upload", up.Elapsed)))
	}

	failed := r.preds.ConversionFailed()
	conv := poll.AwaitPhase(ctx, h.Snapshot, predicate.Any(r.preds.ConversionComplete(), failed), to.Interval,
		time.Now().Add(to.Conversion), "conversion for "+label+" did not finish")
	switch {
	case conv.Detached():
		return probe.StatusFail, conv.Err
	case conv.Cancelled:
		r.rec.Record(probe.Warn(probe.OutcomeConversion+" "+label, "cancelled after %v", conv.Elapsed.Round(time.Millisecond)))
		return probe.StatusWarn, ctx.Err()
	case conv.Reached:
		if bad, _ := predicate.Eval(failed, conv.Last); bad {
			worsen(probe.StatusFail)
			r.rec.Record(probe.Fail(probe.OutcomeConversion+" "+label, "target reported a conversion error"))
		} else {
			r.rec.Record(probe.Pass(probe.OutcomeConversion+" "+label, "conversion finished after %v", conv.Elapsed.Round(time.Millisecond)))
		}
	default:
		worsen(probe.StatusWarn)
		r.rec.Record(probe.Warn(probe.OutcomeConversion+" "+label, "%v", poll.Timeout("conversion", conv.Elapsed)))
	}

	if ev := predicate.ExtractEvidence(conv.Last.Text); !ev.Empty() {
		r.rec.Record(probe.Info(probe.OutcomeEvidence+" "+label, "%s", ev))
	}
	return verdict, nil
}

// choose locates a select and picks value. A missing control is a FAIL for
// that sub-check only.
func (r *Runner) choose(ctx context.Context, h target.Handle, name string, hints []string, value string) (probe.Status, error) {
	ref, err := h.Locate(ctx, target.Query{Role: target.RoleSelect, Hints: hints})
	if err != nil {
		if serr := r.stop(ctx, name, err); serr != nil {
			return probe.StatusFail, serr
		}
		r.rec.Record(probe.Fail(name, "selector not found: %v", err))
		return probe.StatusFail, nil
	}
	if err := h.SelectOption(ctx, ref, value); err != nil {
		if serr := r.stop(ctx, name, err); serr != nil {
			return probe.StatusFail, serr
		}
		r.rec.Record(probe.Fail(name, "could not select %q: %v", value, err))
		return probe.StatusFail, nil
	}
	r.rec.Record(probe.Pass(name, "selected %q", value))
	return probe.StatusPass, nil
}

func rank(s probe.Status) int {
	switch s {
	case probe.StatusFail:
		return 2
	case probe.StatusWarn:
		return 1
	default:
		return 0
	}
}
