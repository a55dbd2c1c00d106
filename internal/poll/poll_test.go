package poll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trevnoctilla/toolprobe/internal/poll"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	times []time.Time
	fn    func(n int) (target.Snapshot, error)
}

func (r *recorder) sample(ctx context.Context) (target.Snapshot, error) {
	r.mu.Lock()
	r.times = append(r.times, time.Now())
	n := len(r.times)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(n)
	}
	return target.Snapshot{Text: "idle"}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func always(ok bool) func(target.Snapshot) (bool, error) {
	return func(target.Snapshot) (bool, error) { return ok, nil }
}

func TestAwaitPhaseFirstSampleAfterOneInterval(t *testing.T) {
	rec := &recorder{}
	start := time.Now()
	res := poll.AwaitPhase(context.Background(), rec.sample, always(true), 50*time.Millisecond, start.Add(time.Second), "")

	require.True(t, res.Reached)
	assert.Equal(t, 1, res.Samples)
	require.Equal(t, 1, rec.count())
	assert.GreaterOrEqual(t, rec.times[0].Sub(start), 50*time.Millisecond, "a phase already satisfied is still observed one interval late")
}

func TestAwaitPhaseNeverReturnsBeforeDeadline(t *testing.T) {
	rec := &recorder{}
	start := time.Now()
	deadline := start.Add(110 * time.Millisecond)
	res := poll.AwaitPhase(context.Background(), rec.sample, always(false), 20*time.Millisecond, deadline, "never satisfied")

	assert.False(t, res.Reached)
	assert.False(t, res.Cancelled)
	assert.False(t, time.Now().Before(deadline))
	assert.GreaterOrEqual(t, res.Elapsed, 110*time.Millisecond)
	assert.Equal(t, rec.count(), res.Samples)
	assert.GreaterOrEqual(t, res.Samples, 2)
	assert.Equal(t, "idle", res.Last.Text)
}

func TestAwaitPhaseDeadlineShorterThanInterval(t *testing.T) {
	rec := &recorder{}
	start := time.Now()
	res := poll.AwaitPhase(context.Background(), rec.sample, always(false), 200*time.Millisecond, start.Add(50*time.Millisecond), "")

	assert.False(t, res.Reached)
	assert.Equal(t, 1, res.Samples, "exactly one sample, taken at the deadline")
	require.Equal(t, 1, rec.count())
	assert.GreaterOrEqual(t, rec.times[0].Sub(start), 50*time.Millisecond)
	assert.Less(t, rec.times[0].Sub(start), 200*time.Millisecond)
}

func TestAwaitPhaseSampleErrorsMeanNotYet(t *testing.T) {
	rec := &recorder{fn: func(n int) (target.Snapshot, error) {
		if n < 3 {
			return target.Snapshot{}, errors.New("transient")
		}
		return target.Snapshot{Text: "Conversion completed"}, nil
	}}
	pred := func(s target.Snapshot) (bool, error) { return s.Text != "", nil }

	res := poll.AwaitPhase(context.Background(), rec.sample, pred, 10*time.Millisecond, time.Now().Add(time.Second), "")

	require.True(t, res.Reached)
	assert.Equal(t, 3, res.Samples)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Conversion completed", res.Last.Text)
}

func TestAwaitPhasePredicatePanicIsNotYet(t *testing.T) {
	rec := &recorder{}
	pred := func(target.Snapshot) (bool, error) { panic("bad predicate") }

	res := poll.AwaitPhase(context.Background(), rec.sample, pred, 10*time.Millisecond, time.Now().Add(40*time.Millisecond), "")
	assert.False(t, res.Reached)
	assert.GreaterOrEqual(t, res.Samples, 1)
}

func TestAwaitPhaseDetached(t *testing.T) {
	rec := &recorder{fn: func(int) (target.Snapshot, error) {
		return target.Snapshot{}, target.ErrTargetDetached
	}}
	res := poll.AwaitPhase(context.Background(), rec.sample, always(true), 10*time.Millisecond, time.Now().Add(30*time.Millisecond), "")

	assert.False(t, res.Reached)
	assert.True(t, res.Detached())
	assert.ErrorIs(t, res.Err, target.ErrTargetDetached)
}

func TestAwaitPhaseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	rec := &recorder{}
	start := time.Now()
	res := poll.AwaitPhase(ctx, rec.sample, always(false), 10*time.Millisecond, start.Add(5*time.Second), "")

	assert.True(t, res.Cancelled)
	assert.False(t, res.Reached)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuard(t *testing.T) {
	waitForCtx := func(ctx context.Context) { <-ctx.Done() }

	assert.True(t, poll.Guard(context.Background(), 20*time.Millisecond, waitForCtx))
	assert.False(t, poll.Guard(context.Background(), time.Second, func(context.Context) {}))

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, poll.Guard(parent, time.Second, waitForCtx), "a cancelled caller is not a timeout")
}

func TestSleep(t *testing.T) {
	assert.NoError(t, poll.Sleep(context.Background(), 5*time.Millisecond))
	assert.NoError(t, poll.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, poll.Sleep(ctx, time.Second), context.Canceled)
}

func TestTimeoutWrapsPhaseTimeout(t *testing.T) {
	err := poll.Timeout("upload", 1500*time.Millisecond)
	assert.ErrorIs(t, err, probe.ErrPhaseTimeout)
	assert.Contains(t, err.Error(), "upload")
	assert.Contains(t, err.Error(), "1.5s")
}

func TestDeadlineRemaining(t *testing.T) {
	d := poll.NewDeadline(time.Hour, probe.Warn(probe.OutcomeGate, "hung"))
	assert.Greater(t, d.Remaining(), 59*time.Minute)
	assert.Equal(t, probe.OutcomeGate, d.Outcome.Name)

	past := poll.Deadline{At: time.Now().Add(-time.Second)}
	assert.Zero(t, past.Remaining())
}
