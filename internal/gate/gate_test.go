package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/gate"
	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/internal/target/targettest"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const toolURL = "http://tools.test/tools/video-converter"

func testTool() probe.Tool {
	tool := probe.DefaultVideoConverter("http://tools.test")
	tool.Timeouts = probe.Timeouts{
		Interval:        5 * time.Millisecond,
		Modal:           300 * time.Millisecond,
		Redirect:        60 * time.Millisecond,
		ModalDismiss:    300 * time.Millisecond,
		DownloadRestore: 300 * time.Millisecond,
		Gate:            3 * time.Second,
		Settle:          time.Millisecond,
	}
	return tool
}

type harness struct {
	conv   *targettest.Converter
	driver *targettest.Driver
	handle target.Handle
	sink   *result.Sink
}

// newHarness puts the converter in its post-sweep state with a live handle
func newHarness(t *testing.T, cfg targettest.ConverterConfig) *harness {
	t.Helper()
	conv := targettest.NewConverter(toolURL, cfg)
	drv := targettest.NewDriver(conv.Page)
	drv.OnReacquire = conv.Reload
	h, err := drv.Acquire(context.Background(), toolURL)
	require.NoError(t, err)

	ref, err := h.Locate(context.Background(), target.Query{Role: target.RoleButton, Hints: []string{"convert"}})
	require.NoError(t, err)
	require.NoError(t, h.Click(context.Background(), ref))

	return &harness{conv: conv, driver: drv, handle: h, sink: result.NewSink("run-1", "video-converter")}
}

func (h *harness) gate(tool probe.Tool) *gate.Gate {
	return gate.New(tool, h.sink, func(ctx context.Context, stale target.Handle) (target.Handle, error) {
		return h.driver.Reacquire(ctx, stale, toolURL)
	})
}

func (h *harness) run(tool probe.Tool) (gate.Result, probe.TestRun) {
	res := h.gate(tool).Run(context.Background(), h.handle)
	return res, h.sink.Snapshot()
}

func only(t *testing.T, run probe.TestRun, name string) probe.TestOutcome {
	t.Helper()
	found := run.Find(name)
	require.Len(t, found, 1, "outcomes named %q", name)
	return found[0]
}

func TestGateWithoutRedirect(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})

	res, run := h.run(testTool())

	assert.False(t, res.Redirected)
	assert.False(t, res.TimedOut)
	assert.NoError(t, res.Err)
	assert.Same(t, h.handle, res.Handle)

	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeDownloadAffordance).Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeModalDetected).Status)
	assert.Equal(t, probe.StatusInfo, only(t, run, probe.OutcomePaymentOption).Status)
	assert.Equal(t, probe.StatusInfo, only(t, run, probe.OutcomeManualAdFallback).Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeViewAdControl).Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeUserReturned).Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeModalDismissed).Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeDownloadRestored).Status)
	assert.Empty(t, run.Find(probe.OutcomeUnexpectedNavigation))
	assert.Empty(t, run.Find(probe.OutcomeGate))

	open := only(t, run, probe.OutcomeAdWindowOpen)
	assert.Equal(t, probe.StatusPass, open.Status)
	assert.Contains(t, open.Message, "https://ads.example.com/watch")
	require.Len(t, res.Opens, 1)
	assert.Equal(t, target.ObservedWindowOpen, res.Opens[0].Kind)

	assert.Equal(t, target.ReturnSequence, h.conv.Signals())
	installs, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, restores)
	assert.Zero(t, run.Counts.Fail)
}

func TestGateRecoversFromRedirect(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{Redirect: true})

	res, run := h.run(testTool())

	require.NoError(t, res.Err)
	assert.True(t, res.Redirected)
	assert.NotSame(t, h.handle, res.Handle)
	assert.Equal(t, 2, res.Handle.Generation())

	nav := only(t, run, probe.OutcomeUnexpectedNavigation)
	assert.Equal(t, probe.StatusPass, nav.Status)
	assert.Equal(t, "recovered", nav.Message)

	stored := only(t, run, probe.OutcomeDownloadURLStored)
	assert.Equal(t, probe.StatusInfo, stored.Status)
	assert.Contains(t, stored.Message, probe.DefaultDownloadURLKey+"=")

	restored := only(t, run, probe.OutcomeDownloadRestored)
	assert.Equal(t, probe.StatusSkip, restored.Status)
	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeModalDismissed).Status)

	assert.Empty(t, h.conv.StaleCalls(), "nothing may touch the handle that was replaced")
	assert.Equal(t, toolURL, h.conv.URL())
	_, reacquires, _ := h.driver.Counts()
	assert.Equal(t, 1, reacquires)

	installs, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, restores)
}

func TestGateRedirectRecoveryFailure(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{Redirect: true})
	h.driver.ReacquireErr = errors.New("browser gone")

	res, run := h.run(testTool())

	assert.ErrorIs(t, res.Err, probe.ErrUnexpectedNavigation)
	assert.Equal(t, probe.StatusFail, only(t, run, probe.OutcomeUnexpectedNavigation).Status)
	assert.Empty(t, run.Find(probe.OutcomeUserReturned))
	_, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, restores)
}

func TestGateModalNotDetected(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{NoModal: true})

	res, run := h.run(testTool())

	assert.False(t, res.TimedOut)
	assert.Equal(t, probe.StatusWarn, only(t, run, probe.OutcomeModalNotDetected).Status)
	assert.Empty(t, run.Find(probe.OutcomeModalDetected))
	assert.Empty(t, run.Find(probe.OutcomeViewAdControl))

	installs, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, restores)
}

func TestGateMissingDownloadControl(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.Remove("Download file")

	_, run := h.run(testTool())

	assert.Equal(t, probe.StatusFail, only(t, run, probe.OutcomeDownloadAffordance).Status)
	assert.Empty(t, run.Find(probe.OutcomeModalDetected))
	_, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, restores)
}

func TestGateMissingViewAdControl(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.Remove("View Ad")

	_, run := h.run(testTool())

	assert.Equal(t, probe.StatusPass, only(t, run, probe.OutcomeModalDetected).Status)
	assert.Equal(t, probe.StatusFail, only(t, run, probe.OutcomeViewAdControl).Status)
	assert.Empty(t, run.Find(probe.OutcomeAdWindowOpen))
}

func TestGateTimeoutRecordsSingleWarn(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{NoModal: true})
	tool := testTool()
	tool.Timeouts.Modal = 5 * time.Second
	tool.Timeouts.Gate = 80 * time.Millisecond

	start := time.Now()
	res, run := h.run(tool)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.TimedOut)
	g := only(t, run, probe.OutcomeGate)
	assert.Equal(t, probe.StatusWarn, g.Status)
	assert.Empty(t, run.Find(probe.OutcomeModalNotDetected), "the interrupted step records nothing")

	installs, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, restores)
}

func TestGateDetachedHandle(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.driver.Detach()

	res, run := h.run(testTool())

	assert.ErrorIs(t, res.Err, target.ErrTargetDetached)
	assert.Equal(t, probe.StatusFail, only(t, run, probe.OutcomeTargetDetached).Status)
	installs, restores := h.conv.SeamCounts()
	assert.Zero(t, installs)
	assert.Zero(t, restores)
}

func TestGateCancelledRecordsSingleWarn(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{NoModal: true})
	tool := testTool()
	tool.Timeouts.Modal = 5 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := h.gate(tool).Run(ctx, h.handle)
	run := h.sink.Snapshot()

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Cancelled)
	assert.False(t, res.TimedOut)
	g := only(t, run, probe.OutcomeGate)
	assert.Equal(t, probe.StatusWarn, g.Status)
	assert.Contains(t, g.Message, "cancelled")
	assert.Empty(t, run.Find(probe.OutcomeModalNotDetected))

	installs, restores := h.conv.SeamCounts()
	assert.Equal(t, 1, installs)
	assert.Equal(t, 1, restores)
}

func TestGateSkippedWhenAlreadyCancelled(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.gate(testTool()).Run(ctx, h.handle)
	run := h.sink.Snapshot()

	assert.True(t, res.Cancelled)
	assert.Equal(t, probe.StatusWarn, only(t, run, probe.OutcomeGate).Status)
	assert.Empty(t, run.Find(probe.OutcomeDownloadAffordance))
	installs, _ := h.conv.SeamCounts()
	assert.Zero(t, installs)
}
