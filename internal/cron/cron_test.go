package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trevnoctilla/toolprobe/pkg/artifact"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

type fakeRunner struct{ calls atomic.Int32 }

func (f *fakeRunner) RunAll(ctx context.Context) []probe.TestRun {
	f.calls.Add(1)
	run := probe.NewTestRun("r", "video-converter", time.Now())
	run.Counts.Fail = 1
	return []probe.TestRun{run}
}

type fakeReclaimer struct{ calls atomic.Int32 }

func (f *fakeReclaimer) Reclaim(ctx context.Context) (*artifact.ReclaimResult, error) {
	f.calls.Add(1)
	return &artifact.ReclaimResult{Success: true}, nil
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	m := NewManager(logger.New(), Schedule{Runs: "not a cron spec"}, &fakeRunner{}, &fakeReclaimer{})
	assert.Error(t, m.Start())
}

func TestStartRegistersConfiguredJobsOnly(t *testing.T) {
	m := NewManager(logger.New(), Schedule{Runs: "@every 1h", ArtifactReclaim: ""}, &fakeRunner{}, &fakeReclaimer{})
	assert.NoError(t, m.Start())
	defer m.Stop()

	assert.Len(t, m.cron.Entries(), 1)
}

func TestStartSkipsJobsWithoutCollaborators(t *testing.T) {
	m := NewManager(logger.New(), Schedule{Runs: "@every 1h", ArtifactReclaim: "@daily"}, nil, nil)
	assert.NoError(t, m.Start())
	defer m.Stop()

	assert.Empty(t, m.cron.Entries())
}

func TestJobsCallCollaborators(t *testing.T) {
	runner, reclaimer := &fakeRunner{}, &fakeReclaimer{}
	m := NewManager(logger.New(), Schedule{}, runner, reclaimer)

	m.runCatalog()
	m.reclaimArtifacts()

	assert.EqualValues(t, 1, runner.calls.Load())
	assert.EqualValues(t, 1, reclaimer.calls.Load())
}
