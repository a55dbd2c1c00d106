package result_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) Notify(ctx context.Context, run probe.TestRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

// frozen returns a clock that never advances
func frozen() func() time.Time {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestRecordTimestampsStrictlyIncrease(t *testing.T) {
	sink := result.NewSink("run-1", "video-converter", result.WithClock(frozen()))

	first := sink.Record(probe.Pass("A", "one"))
	second := sink.Record(probe.Warn("B", "two"))
	third := sink.Record(probe.Info("C", "three"))

	assert.True(t, second.Timestamp.After(first.Timestamp))
	assert.True(t, third.Timestamp.After(second.Timestamp))

	run := sink.Snapshot()
	require.Len(t, run.Outcomes, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{run.Outcomes[0].Name, run.Outcomes[1].Name, run.Outcomes[2].Name})
	assert.Equal(t, probe.Counts{Pass: 1, Warn: 1, Info: 1}, run.Counts)
}

func TestConcurrentRecordsKeepOrder(t *testing.T) {
	sink := result.NewSink("run-1", "video-converter")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Record(probe.Info("Tick", "tick"))
		}()
	}
	wg.Wait()

	run := sink.Snapshot()
	require.Len(t, run.Outcomes, 50)
	for i := 1; i < len(run.Outcomes); i++ {
		assert.True(t, run.Outcomes[i].Timestamp.After(run.Outcomes[i-1].Timestamp))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	sink := result.NewSink("run-1", "video-converter")
	sink.Record(probe.Pass("A", "one"))

	snap := sink.Snapshot()
	snap.Outcomes[0].Message = "changed"

	assert.Equal(t, "one", sink.Snapshot().Outcomes[0].Message)
}

func TestPublisherSeesEveryChange(t *testing.T) {
	var states []probe.RunState
	var sizes []int
	pub := result.PublisherFunc(func(run probe.TestRun) {
		states = append(states, run.State)
		sizes = append(sizes, len(run.Outcomes))
	})
	sink := result.NewSink("run-1", "video-converter", result.WithPublisher(pub))

	sink.SetState(probe.StateConsentCheck)
	sink.Record(probe.Info(probe.OutcomeConsent, "no consent banner"))
	sink.SetState(probe.StateDone)
	sink.Complete(context.Background())

	assert.Equal(t, []probe.RunState{probe.StateConsentCheck, probe.StateConsentCheck, probe.StateDone, probe.StateDone}, states)
	assert.Equal(t, []int{0, 1, 1, 1}, sizes)
}

func TestMultiPublisherSkipsNil(t *testing.T) {
	var got int
	m := result.MultiPublisher{nil, result.PublisherFunc(func(probe.TestRun) { got++ })}
	m.Publish(probe.NewTestRun("r", "t", time.Now()))
	assert.Equal(t, 1, got)
}

func TestCompleteNotifiesOnlyWithoutFailures(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []probe.TestOutcome
		notified int
	}{
		{"all pass", []probe.TestOutcome{probe.Pass("A", ""), probe.Warn("B", ""), probe.Skip("C", "")}, 1},
		{"one failure", []probe.TestOutcome{probe.Pass("A", ""), probe.Fail("B", "")}, 0},
		{"empty run", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &countingNotifier{}
			sink := result.NewSink("run-1", "video-converter", result.WithNotifier(n))
			for _, o := range tt.outcomes {
				sink.Record(o)
			}
			run := sink.Complete(context.Background())

			require.NotNil(t, run.CompletedAt)
			assert.Equal(t, tt.notified, n.calls)
		})
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	n := &countingNotifier{}
	sink := result.NewSink("run-1", "video-converter", result.WithNotifier(n))
	sink.Record(probe.Pass("A", ""))

	first := sink.Complete(context.Background())
	second := sink.Complete(context.Background())

	assert.Equal(t, 1, n.calls)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestNotifierErrorIsSwallowed(t *testing.T) {
	n := &countingNotifier{err: errors.New("smtp down")}
	sink := result.NewSink("run-1", "video-converter", result.WithNotifier(n))

	run := sink.Complete(context.Background())

	assert.Equal(t, 1, n.calls)
	assert.Empty(t, run.Outcomes, "a notifier failure does not change the run")
}

func TestCompleteSkipsNotifierForCancelledRun(t *testing.T) {
	t.Run("marked cancelled", func(t *testing.T) {
		n := &countingNotifier{}
		sink := result.NewSink("run-1", "video-converter", result.WithNotifier(n))
		sink.Record(probe.Pass("A", ""))
		sink.Cancel()

		run := sink.Complete(context.Background())

		assert.True(t, run.Cancelled)
		assert.Zero(t, n.calls)
	})
	t.Run("context ended", func(t *testing.T) {
		n := &countingNotifier{}
		sink := result.NewSink("run-1", "video-converter", result.WithNotifier(n))
		sink.Record(probe.Pass("A", ""))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		run := sink.Complete(ctx)

		require.NotNil(t, run.CompletedAt)
		assert.Zero(t, n.calls)
	})
}
