package sweep_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/sweep"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/internal/target/targettest"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const toolURL = "http://tools.test/tools/video-converter"

var fixture = probe.FixtureFile{Name: "test-video.mp4", MimeType: "video/mp4", Path: "/tmp/test-video.mp4"}

func testTool() probe.Tool {
	tool := probe.DefaultVideoConverter("http://tools.test")
	tool.Timeouts = probe.Timeouts{
		Interval:   5 * time.Millisecond,
		Upload:     500 * time.Millisecond,
		Conversion: 500 * time.Millisecond,
		Reset:      300 * time.Millisecond,
	}
	return tool
}

type harness struct {
	conv   *targettest.Converter
	handle *targettest.Handle
	sink   *result.Sink
	runner *sweep.Runner
}

func newHarness(t *testing.T, cfg targettest.ConverterConfig) *harness {
	t.Helper()
	conv := targettest.NewConverter(toolURL, cfg)
	sink := result.NewSink("run-1", "video-converter")
	return &harness{
		conv:   conv,
		handle: targettest.NewHandle(conv.Page),
		sink:   sink,
		runner: sweep.NewRunner(testTool(), sink),
	}
}

// direct runs every phase against the harness handle with no recovery
func (h *harness) direct(ctx context.Context, _ probe.RunState, fn func(ctx context.Context, h target.Handle) error) error {
	return fn(ctx, h.handle)
}

func (h *harness) run(combos []probe.FormatCombo) (sweep.Summary, probe.TestRun) {
	sum := h.runner.Run(context.Background(), h.direct, fixture, combos)
	return sum, h.sink.Snapshot()
}

func statusOf(t *testing.T, run probe.TestRun, name string) probe.Status {
	t.Helper()
	found := run.Find(name)
	require.NotEmpty(t, found, "no outcome named %q", name)
	return found[len(found)-1].Status
}

func TestSweepResetsBetweenCombosOnly(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	combos := testTool().Combos

	sum, run := h.run(combos)

	assert.Equal(t, sweep.Summary{Cycles: 3, Resets: 2, Passed: 3}, sum)
	assert.Equal(t, 3, h.conv.Conversions())
	assert.Len(t, h.conv.Files(), 2, "the fixture is re-injected only after a reset")

	assert.Empty(t, run.Find("Reset mp4 q85 medium"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Reset webm q75 web"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Reset mp3 q95 none"))

	for _, c := range combos {
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "FormatSelect "+c.String()))
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "QualitySelect "+c.String()))
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "CompressionSelect "+c.String()))
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "Convert "+c.String()))
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "Upload "+c.String()))
		assert.Equal(t, probe.StatusPass, statusOf(t, run, "Conversion "+c.String()))
		assert.Equal(t, probe.StatusInfo, statusOf(t, run, "Evidence "+c.String()))
	}

	sweeps := run.Find(probe.OutcomeSweep)
	require.Len(t, sweeps, 1)
	assert.Equal(t, probe.StatusPass, sweeps[0].Status)
	assert.Contains(t, sweeps[0].Message, "3/3 combos passed")

	assert.Equal(t, map[string]string{"Output Format": "mp3", "Quality": "95", "Compression": "none"}, h.conv.Selected())
}

func TestSweepSingleComboHasNoReset(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})

	sum, run := h.run([]probe.FormatCombo{{Format: "mp4"}})

	assert.Equal(t, 1, sum.Cycles)
	assert.Zero(t, sum.Resets)
	assert.Empty(t, h.conv.Files())
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Convert mp4"))
	assert.Empty(t, run.Find("QualitySelect mp4"), "unset combo fields are not selected")
}

func TestSweepMissingResetControlReuploads(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.Remove("Remove file")

	sum, run := h.run(testTool().Combos[:2])

	assert.Equal(t, 1, sum.Resets)
	assert.Equal(t, 2, sum.Passed)
	resets := run.Find("Reset webm q75 web")
	require.NotEmpty(t, resets)
	assert.Equal(t, probe.StatusInfo, resets[0].Status)
	assert.Contains(t, resets[0].Message, "no reset control")
	assert.Len(t, h.conv.Files(), 1)
}

func TestSweepMissingSelectFailsThatCheckOnly(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.Remove("Compression")

	sum, run := h.run(testTool().Combos[:1])

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, probe.StatusFail, statusOf(t, run, "CompressionSelect mp4 q85 medium"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Convert mp4 q85 medium"), "the combo still converts")
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Conversion mp4 q85 medium"))
	assert.Equal(t, probe.StatusFail, statusOf(t, run, probe.OutcomeSweep))
}

func TestSweepConversionFailureMarker(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{FailFormats: []string{"webm"}})

	sum, run := h.run(testTool().Combos)

	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, probe.StatusFail, statusOf(t, run, "Conversion webm q75 web"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Conversion mp3 q95 none"), "the sweep advances past a failed combo")

	sweeps := run.Find(probe.OutcomeSweep)
	require.Len(t, sweeps, 1)
	assert.Equal(t, probe.StatusFail, sweeps[0].Status)
	assert.Contains(t, sweeps[0].Message, "2/3 combos passed")
}

func TestSweepMissingTrigger(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.Remove("Convert to MP4")

	sum, run := h.run(testTool().Combos[:1])

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, probe.StatusFail, statusOf(t, run, "Convert mp4 q85 medium"))
	assert.Empty(t, run.Find("Upload mp4 q85 medium"))
	assert.Zero(t, h.conv.Conversions())
}

func TestSweepStepperFailureCountsAsFailed(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	step := func(ctx context.Context, phase probe.RunState, fn func(ctx context.Context, h target.Handle) error) error {
		if phase == probe.SweepingState(2) {
			return errors.New("gave up")
		}
		return h.direct(ctx, phase, fn)
	}

	sum := h.runner.Run(context.Background(), step, fixture, testTool().Combos)

	assert.Equal(t, 2, sum.Cycles)
	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, probe.StatusFail, statusOf(t, h.sink.Snapshot(), probe.OutcomeSweep))
}

func TestSweepDetachmentIsReturnedToStepper(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.OnConvert = func(int) { h.handle.Revoke() }

	var got error
	step := func(ctx context.Context, phase probe.RunState, fn func(ctx context.Context, h target.Handle) error) error {
		got = fn(ctx, h.handle)
		return got
	}
	sum := h.runner.Run(context.Background(), step, fixture, testTool().Combos[:1])

	assert.ErrorIs(t, got, target.ErrTargetDetached)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, h.sink.Snapshot().Find("Upload mp4 q85 medium"), "a detached poll records no phase outcome")
}

func TestSweepCancelledRunIsNotPassed(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.conv.OnConvert = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	sum := h.runner.Run(ctx, h.direct, fixture, testTool().Combos)
	run := h.sink.Snapshot()

	assert.Zero(t, sum.Passed)
	assert.Equal(t, 3, sum.Cancelled)
	assert.Equal(t, 1, h.conv.Conversions(), "no combo converts after cancellation")

	upload := run.Find("Upload mp4 q85 medium")
	require.Len(t, upload, 1)
	assert.Equal(t, probe.StatusWarn, upload[0].Status)
	assert.Contains(t, upload[0].Message, "cancelled")
	assert.Equal(t, probe.StatusWarn, statusOf(t, run, "Reset webm q75 web"))
	assert.Equal(t, probe.StatusWarn, statusOf(t, run, "Reset mp3 q95 none"))

	sweeps := run.Find(probe.OutcomeSweep)
	require.Len(t, sweeps, 1)
	assert.Equal(t, probe.StatusWarn, sweeps[0].Status)
	assert.Contains(t, sweeps[0].Message, "0/3 combos passed")
	assert.Contains(t, sweeps[0].Message, "3 cancelled")
}

func TestSweepRetryAfterRecoverySkipsReset(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	h.conv.OnConvert = func(n int) {
		if n == 2 {
			h.handle.Revoke()
		}
	}
	step := func(ctx context.Context, phase probe.RunState, fn func(ctx context.Context, h target.Handle) error) error {
		err := fn(ctx, h.handle)
		if !errors.Is(err, target.ErrTargetDetached) {
			return err
		}
		h.conv.Reload(h.conv.Page, toolURL)
		h.handle = targettest.NewHandle(h.conv.Page)
		if _, err := h.runner.Inject(ctx, h.handle, fixture); err != nil {
			return err
		}
		return fn(ctx, h.handle)
	}

	sum := h.runner.Run(context.Background(), step, fixture, testTool().Combos)
	run := h.sink.Snapshot()

	assert.Equal(t, sweep.Summary{Cycles: 3, Resets: 2, Passed: 3}, sum)
	assert.Equal(t, 4, h.conv.Conversions())
	assert.Len(t, run.Find("Reset webm q75 web"), 1, "the retry does not reset again")
	// reset before combo 2, re-inject after the reload, reset before combo 3
	assert.Len(t, h.conv.Files(), 3)
	assert.Contains(t, statusMessage(t, run, probe.OutcomeSweep), "(2 resets)")
}

func TestSweepUploadStallWarnsAndAdvances(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{})
	tool := testTool()
	tool.Timeouts.Upload = 50 * time.Millisecond
	tool.Timeouts.Conversion = 50 * time.Millisecond
	h.runner = sweep.NewRunner(tool, h.sink)
	h.conv.OnConvert = func(n int) {
		if n == 1 {
			h.conv.SetBody(`<div class="result"><p>Uploading... 0%</p><button>Remove file</button></div>`)
		}
	}

	sum, run := h.run(tool.Combos)

	assert.Equal(t, 2, sum.Resets)
	assert.Equal(t, 1, sum.Warned)
	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, probe.StatusWarn, statusOf(t, run, "Upload mp4 q85 medium"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Reset webm q75 web"))
	assert.Equal(t, probe.StatusPass, statusOf(t, run, "Upload webm q75 web"))
	assert.Equal(t, probe.StatusWarn, statusOf(t, run, probe.OutcomeSweep))
}

func TestSweepRecordsConverterActivity(t *testing.T) {
	h := newHarness(t, targettest.ConverterConfig{ConsoleErrors: map[string]string{
		"webm": "Uncaught TypeError: cannot read properties of undefined",
		"mp4":  "Error: Text content does not match server-rendered HTML (hydration)",
	}})

	sum, run := h.run(testTool().Combos)

	assert.Equal(t, 1, sum.ConsoleErrors)
	assert.Equal(t, 3, sum.Passed, "console errors do not fail a combo")

	network := run.Find("Network mp4 q85 medium")
	require.Len(t, network, 1)
	assert.Equal(t, probe.StatusInfo, network[0].Status)
	assert.Equal(t, "POST /api/convert-video, GET /api/video-progress/job-mp4 x2", network[0].Message)

	assert.Empty(t, run.Find("Console mp4 q85 medium"), "hydration warnings are ignored")
	console := run.Find("Console webm q75 web")
	require.Len(t, console, 1)
	assert.Equal(t, probe.StatusWarn, console[0].Status)
	assert.Contains(t, console[0].Message, "Uncaught TypeError")
	assert.Empty(t, run.Find("Console mp3 q95 none"))
}

func statusMessage(t *testing.T, run probe.TestRun, name string) string {
	t.Helper()
	found := run.Find(name)
	require.NotEmpty(t, found, "no outcome named %q", name)
	return found[len(found)-1].Message
}
