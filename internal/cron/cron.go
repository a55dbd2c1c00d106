package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trevnoctilla/toolprobe/pkg/artifact"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const (
	// Timeout for a scheduled catalog run
	catalogRunTimeout = 30 * time.Minute
	// Timeout for artifact reclamation
	artifactReclaimTimeout = 10 * time.Minute
)

// CatalogRunner runs every tool and waits for the results
type CatalogRunner interface {
	RunAll(ctx context.Context) []probe.TestRun
}

// ArtifactReclaimer removes expired captures
type ArtifactReclaimer interface {
	Reclaim(ctx context.Context) (*artifact.ReclaimResult, error)
}

// Schedule holds the cron specs; an empty spec disables its job
type Schedule struct {
	Runs            string
	ArtifactReclaim string
}

// Manager manages cron jobs
type Manager struct {
	cron      *cron.Cron
	logger    *logger.Logger
	schedule  Schedule
	runner    CatalogRunner
	reclaimer ArtifactReclaimer
}

// NewManager creates a new cron manager
func NewManager(logger *logger.Logger, schedule Schedule, runner CatalogRunner, reclaimer ArtifactReclaimer) *Manager {
	return &Manager{
		cron:      cron.New(cron.WithLogger(cron.DefaultLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger:    logger,
		schedule:  schedule,
		runner:    runner,
		reclaimer: reclaimer,
	}
}

// Start registers the configured jobs and starts the scheduler
func (m *Manager) Start() error {
	if m.schedule.Runs != "" && m.runner != nil {
		if _, err := m.cron.AddFunc(m.schedule.Runs, m.runCatalog); err != nil {
			return err
		}
		m.logger.Info("Scheduled catalog runs: %s", m.schedule.Runs)
	}

	if m.schedule.ArtifactReclaim != "" && m.reclaimer != nil {
		if _, err := m.cron.AddFunc(m.schedule.ArtifactReclaim, m.reclaimArtifacts); err != nil {
			return err
		}
	}

	m.cron.Start()
	m.logger.Info("Cron manager started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Cron manager stopped")
}

// runCatalog runs the scheduled catalog pass
func (m *Manager) runCatalog() {
	m.logger.Info("Running scheduled catalog pass")
	ctx, cancel := context.WithTimeout(context.Background(), catalogRunTimeout)
	defer cancel()

	runs := m.runner.RunAll(ctx)
	if ctx.Err() == context.DeadlineExceeded {
		m.logger.Error("Catalog pass timed out after %v", catalogRunTimeout)
	}
	failed, cancelled := 0, 0
	for _, run := range runs {
		switch {
		case run.Counts.Fail > 0:
			failed++
		case run.Cancelled:
			cancelled++
		}
	}
	m.logger.Info("Catalog pass finished: %d runs, %d with failures, %d cancelled", len(runs), failed, cancelled)
}

// reclaimArtifacts runs the artifact reclamation job
func (m *Manager) reclaimArtifacts() {
	m.logger.Info("Running scheduled artifact reclamation")
	ctx, cancel := context.WithTimeout(context.Background(), artifactReclaimTimeout)
	defer cancel()

	_, err := m.reclaimer.Reclaim(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			m.logger.Error("Artifact reclamation timed out after %v", artifactReclaimTimeout)
		} else {
			m.logger.Error("Failed to reclaim artifacts: %v", err)
		}
	}
}
