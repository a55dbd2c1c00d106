package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/config"
	"github.com/trevnoctilla/toolprobe/internal/feed"
	"github.com/trevnoctilla/toolprobe/internal/run/service"
	"github.com/trevnoctilla/toolprobe/internal/target/targettest"
	"github.com/trevnoctilla/toolprobe/internal/tracker"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const toolURL = "http://tools.test/tools/video-converter"

type staticFixture struct{}

func (staticFixture) Fetch(ctx context.Context, spec probe.FixtureSpec) (probe.FixtureFile, error) {
	return probe.FixtureFile{Name: "test-video.mp4", MimeType: "video/mp4", Path: "/tmp/test-video.mp4"}, nil
}

func testTool() probe.Tool {
	tool := probe.DefaultVideoConverter("http://tools.test")
	tool.Gate.Enabled = false
	tool.Combos = tool.Combos[:1]
	tool.Timeouts = probe.Timeouts{
		Interval:   5 * time.Millisecond,
		Consent:    200 * time.Millisecond,
		Upload:     300 * time.Millisecond,
		Conversion: 300 * time.Millisecond,
	}
	return tool
}

func newService(t *testing.T) (*service.RunService, *feed.Hub) {
	t.Helper()
	conv := targettest.NewConverter(toolURL, targettest.ConverterConfig{})
	hub := feed.NewHub(tracker.NewInMemoryRunTracker())
	svc := service.New(&config.Catalog{Tools: []probe.Tool{testTool()}}, service.Options{
		Driver:   targettest.NewDriver(conv.Page),
		Fixtures: staticFixture{},
		Feed:     hub,
	})
	t.Cleanup(svc.Close)
	return svc, hub
}

func TestStartRunsInBackground(t *testing.T) {
	svc, hub := newService(t)

	run, err := svc.Start("video-converter")
	require.NoError(t, err)
	assert.Equal(t, "video-converter", run.ToolID)
	assert.NotEmpty(t, run.ID)

	_, err = svc.Start("video-converter")
	assert.ErrorIs(t, err, service.ErrRunInProgress)

	live, err := svc.Latest("video-converter")
	require.NoError(t, err)
	assert.Equal(t, run.ID, live.ID)

	require.Eventually(t, func() bool {
		latest, ok := hub.Latest("video-converter")
		return ok && latest.Done()
	}, 5*time.Second, 10*time.Millisecond)

	done, err := svc.Latest("video-converter")
	require.NoError(t, err)
	assert.Equal(t, run.ID, done.ID)
	assert.Zero(t, done.Counts.Fail)
	assert.Len(t, svc.Runs(), 1)

	require.Eventually(t, func() bool {
		_, err := svc.Start("video-converter")
		return err == nil
	}, time.Second, 10*time.Millisecond, "a finished tool can run again")
}

func TestUnknownTool(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Start("image-converter")
	assert.ErrorIs(t, err, service.ErrToolNotFound)

	_, err = svc.Latest("video-converter")
	assert.ErrorIs(t, err, service.ErrToolNotFound, "no run recorded yet")
}

func TestRunAllWaits(t *testing.T) {
	svc, _ := newService(t)

	runs := svc.RunAll(context.Background())

	require.Len(t, runs, 1)
	assert.True(t, runs[0].Done())
	assert.Equal(t, probe.StatusPass, runs[0].Find(probe.OutcomeSweep)[0].Status)
	assert.Len(t, svc.Tools(), 1)
}

func TestClosedServiceRefusesRuns(t *testing.T) {
	svc, _ := newService(t)
	svc.Close()

	_, err := svc.Start("video-converter")
	assert.ErrorIs(t, err, service.ErrClosed)
	assert.Empty(t, svc.StartAll())
}

func TestCloseWaitsForRacingStart(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc, hub := newService(t)

		started := make(chan error, 1)
		go func() {
			_, err := svc.Start("video-converter")
			started <- err
		}()
		svc.Close()
		err := <-started

		if err != nil {
			assert.ErrorIs(t, err, service.ErrClosed)
			continue
		}
		latest, ok := hub.Latest("video-converter")
		require.True(t, ok)
		assert.True(t, latest.Done(), "Close returned before the run it admitted finished")
	}
}

func TestCloseCancelsForegroundRuns(t *testing.T) {
	tool := testTool()
	tool.Timeouts.Consent = 5 * time.Second
	conv := targettest.NewConverter(toolURL, targettest.ConverterConfig{})
	svc := service.New(&config.Catalog{Tools: []probe.Tool{tool}}, service.Options{
		Driver:   targettest.NewDriver(conv.Page),
		Fixtures: staticFixture{},
	})

	done := make(chan []probe.TestRun, 1)
	go func() { done <- svc.RunAll(context.Background()) }()
	require.Eventually(t, func() bool {
		_, err := svc.Latest("video-converter")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	svc.Close()
	var runs []probe.TestRun
	select {
	case runs = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunAll did not return after Close")
	}

	require.Len(t, runs, 1)
	assert.True(t, runs[0].Done())
	assert.True(t, runs[0].Cancelled)
}
