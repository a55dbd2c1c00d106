package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trevnoctilla/toolprobe/internal/poll"
	"github.com/trevnoctilla/toolprobe/internal/predicate"
	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Reacquirer reloads the tool page and returns the handle that replaces stale
type Reacquirer func(ctx context.Context, stale target.Handle) (target.Handle, error)

// Result describes how the gate ended
type Result struct {
	// Handle is the live handle after the gate; it differs from the input
	// handle when a redirect forced a re-acquire
	Handle     target.Handle
	Redirected bool
	TimedOut   bool
	// Cancelled is set when the caller's context ended first
	Cancelled bool
	Opens      []target.Observation
	// Err is set when the target detached and could not be recovered
	Err error
}

// Gate drives the "view ad to unlock download" flow
type Gate struct {
	tool      probe.Tool
	preds     predicate.Set
	rec       result.Recorder
	reacquire Reacquirer
	log       *logger.Logger
}

// New returns a gate for tool
func New(tool probe.Tool, rec result.Recorder, reacquire Reacquirer) *Gate {
	tool = tool.WithDefaults()
	return &Gate{
		tool:      tool,
		preds:     predicate.NewSet(tool),
		rec:       rec,
		reacquire: reacquire,
		log:       logger.New().With("tool", tool.ID).With("component", "gate"),
	}
}

// Run executes the gate under its outer deadline. Exceeding the deadline or
// losing the caller's context records a single Gate WARN; steps interrupted
// by either record nothing.
func (g *Gate) Run(ctx context.Context, h target.Handle) Result {
	res := Result{Handle: h}
	if err := ctx.Err(); err != nil {
		res.Cancelled = true
		g.rec.Record(probe.Warn(probe.OutcomeGate, "gate skipped, run cancelled: %v", err))
		return res
	}
	start := time.Now()
	timedOut := poll.Guard(ctx, g.tool.Timeouts.Gate, func(gctx context.Context) {
		g.run(gctx, &res)
	})
	switch {
	case timedOut:
		res.TimedOut = true
		g.rec.Record(probe.Warn(probe.OutcomeGate, "gate timed out after %v", time.Since(start).Round(time.Millisecond)))
	case ctx.Err() != nil:
		res.Cancelled = true
		g.rec.Record(probe.Warn(probe.OutcomeGate, "gate cancelled after %v: %v", time.Since(start).Round(time.Millisecond), ctx.Err()))
	}
	return res
}

func (g *Gate) run(ctx context.Context, res *Result) {
	h := res.Handle
	to := g.tool.Timeouts

	seam, err := h.InterceptNavigation(ctx)
	if err != nil {
		if g.interrupted(ctx, res, err) {
			return
		}
		g.rec.Record(probe.Warn(probe.OutcomeNavigationSeam, "could not install navigation interception: %v", err))
	} else {
		defer func() {
			if err := seam.Restore(); err != nil {
				g.log.Warn("Restoring navigation seam failed: %v", err)
			}
		}()
	}

	// 1. download affordance and modal
	download, err := h.Locate(ctx, target.Query{
		Role:        target.RoleAction,
		Hints:       g.tool.Hints.Download,
		Exclude:     g.tool.Hints.DownloadExclude,
		EnabledOnly: true,
	})
	if err != nil {
		if g.interrupted(ctx, res, err) {
			return
		}
		g.rec.Record(probe.Fail(probe.OutcomeDownloadAffordance, "download control not found after the sweep: %v", err))
		return
	}
	if err := h.Click(ctx, download); err != nil {
		if g.interrupted(ctx, res, err) {
			return
		}
		g.rec.Record(probe.Fail(probe.OutcomeDownloadAffordance, "clicking %q failed: %v", download.Label, err))
		return
	}
	g.rec.Record(probe.Pass(probe.OutcomeDownloadAffordance, "clicked %q", download.Label))

	modal := poll.AwaitPhase(ctx, h.Snapshot, g.preds.ModalPresent(), to.Interval, time.Now().Add(to.Modal), "gating modal did not appear")
	if g.pollInterrupted(ctx, res, modal) {
		return
	}
	if !modal.Reached {
		g.rec.Record(probe.Warn(probe.OutcomeModalNotDetected, "no gating modal within %v", to.Modal))
		return
	}
	g.rec.Record(probe.Pass(probe.OutcomeModalDetected, "gating modal shown after %v", modal.Elapsed.Round(time.Millisecond)))
	if ok, _ := predicate.Eval(g.preds.ModalMentions(g.tool.Hints.Payment...), modal.Last); ok {
		g.rec.Record(probe.Info(probe.OutcomePaymentOption, "modal offers a paid unlock"))
	}
	if ok, _ := predicate.Eval(g.preds.ModalMentions(g.tool.Hints.ManualAd...), modal.Last); ok {
		g.rec.Record(probe.Info(probe.OutcomeManualAdFallback, "modal shows the manual ad fallback"))
	}

	// 2. view ad control inside the modal
	viewAd, err := h.Locate(ctx, target.Query{
		Role:        target.RoleAction,
		Hints:       g.tool.Hints.ViewAd,
		Within:      g.tool.Hints.Modal,
		Exclude:     g.tool.Hints.ViewAdExclude,
		EnabledOnly: true,
	})
	if err != nil {
		if g.interrupted(ctx, res, err) {
			return
		}
		g.rec.Record(probe.Fail(probe.OutcomeViewAdControl, "no view-ad control in the modal: %v", err))
		return
	}

	// 3-4. click with the seam in place, then look for a redirect
	if err := h.Click(ctx, viewAd); err != nil {
		if g.interrupted(ctx, res, err) {
			return
		}
		g.rec.Record(probe.Fail(probe.OutcomeViewAdControl, "clicking %q failed: %v", viewAd.Label, err))
		return
	}
	g.rec.Record(probe.Pass(probe.OutcomeViewAdControl, "clicked %q", viewAd.Label))

	redirect := poll.AwaitPhase(ctx, h.Snapshot, predicate.AtRoute(g.tool.Gate.PostAdRoute), to.Interval, time.Now().Add(to.Redirect), "")
	if ctx.Err() != nil {
		return
	}
	if seam != nil {
		res.Opens = seam.Observations(ctx)
	}
	g.recordOpens(res.Opens)

	if redirect.Reached {
		res.Redirected = true
		g.log.Info("Target navigated to %s, reloading %s", redirect.Last.URL, g.tool.URL)
		fresh, err := g.reacquire(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			res.Err = fmt.Errorf("%w: %v", probe.ErrUnexpectedNavigation, err)
			g.rec.Record(probe.Fail(probe.OutcomeUnexpectedNavigation, "could not recover from navigation to %s: %v", redirect.Last.URL, err))
			return
		}
		h = fresh
		res.Handle = fresh
		g.rec.Record(probe.Pass(probe.OutcomeUnexpectedNavigation, "recovered"))

		if url, err := h.LocalStorage(ctx, g.tool.Gate.StorageKey); err == nil && url != "" {
			g.rec.Record(probe.Info(probe.OutcomeDownloadURLStored, "%s=%s", g.tool.Gate.StorageKey, url))
		} else if g.interrupted(ctx, res, err) {
			return
		}
	}

	// 5. user returns from the ad
	for i, sig := range target.ReturnSequence {
		if i > 0 {
			if poll.Sleep(ctx, to.Settle) != nil {
				return
			}
		}
		if err := h.Signal(ctx, sig); err != nil {
			if g.interrupted(ctx, res, err) {
				return
			}
			g.rec.Record(probe.Warn(probe.OutcomeUserReturned, "signal %s failed: %v", sig, err))
			break
		}
		if i == len(target.ReturnSequence)-1 {
			g.rec.Record(probe.Pass(probe.OutcomeUserReturned, "dispatched %s", joinSignals(target.ReturnSequence)))
		}
	}

	// 6. modal goes away
	dismissed := poll.AwaitPhase(ctx, h.Snapshot, g.preds.ModalAbsent(), to.Interval, time.Now().Add(to.ModalDismiss), "gating modal is still shown")
	if g.pollInterrupted(ctx, res, dismissed) {
		return
	}
	if dismissed.Reached {
		g.rec.Record(probe.Pass(probe.OutcomeModalDismissed, "modal closed after the user returned"))
	} else {
		g.rec.Record(probe.Warn(probe.OutcomeModalDismissed, "modal still shown after %v", to.ModalDismiss))
	}

	// 7. download comes back
	if res.Redirected {
		g.rec.Record(probe.Skip(probe.OutcomeDownloadRestored, "tool page was reloaded after the redirect"))
		return
	}
	restored := poll.AwaitPhase(ctx, h.Snapshot, g.preds.DownloadAvailable(), to.Interval, time.Now().Add(to.DownloadRestore), "download control did not return")
	if g.pollInterrupted(ctx, res, restored) {
		return
	}
	if restored.Reached {
		g.rec.Record(probe.Pass(probe.OutcomeDownloadRestored, "download available again"))
	} else {
		g.rec.Record(probe.Warn(probe.OutcomeDownloadRestored, "download control not shown within %v", to.DownloadRestore))
	}
}

func (g *Gate) recordOpens(opens []target.Observation) {
	if len(opens) == 0 {
		g.rec.Record(probe.Info(probe.OutcomeAdWindowOpen, "no new window was attempted"))
		return
	}
	first := opens[0]
	g.rec.Record(probe.Pass(probe.OutcomeAdWindowOpen, "intercepted %d %s attempt(s), first to %s", len(opens), first.Kind, first.URL))
}

// interrupted reports whether the step must stop without an outcome: the
// outer deadline fired, or the handle detached (recorded once here)
func (g *Gate) interrupted(ctx context.Context, res *Result, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, target.ErrTargetDetached) {
		res.Err = err
		g.rec.Record(probe.Fail(probe.OutcomeTargetDetached, "target detached during the gate: %v", err))
		return true
	}
	return false
}

func (g *Gate) pollInterrupted(ctx context.Context, res *Result, r poll.Result) bool {
	if r.Cancelled || ctx.Err() != nil {
		return true
	}
	if r.Detached() {
		return g.interrupted(ctx, res, r.Err)
	}
	return false
}

func joinSignals(sigs []target.Signal) string {
	parts := make([]string, len(sigs))
	for i, s := range sigs {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}
