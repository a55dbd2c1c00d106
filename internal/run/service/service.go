package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/trevnoctilla/toolprobe/config"
	"github.com/trevnoctilla/toolprobe/internal/orchestrator"
	"github.com/trevnoctilla/toolprobe/internal/result"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Feed receives live run snapshots and answers for the latest one per tool
type Feed interface {
	result.Publisher
	Latest(toolID string) (probe.TestRun, bool)
	All() []probe.TestRun
}

// Options are the collaborators shared by every run
type Options struct {
	Driver    target.Driver
	Fixtures  orchestrator.FixtureFetcher
	Artifacts orchestrator.ArtifactSaver
	Feed      Feed
	Notifier  result.Notifier
	// Concurrency bounds RunAll; 0 is unbounded
	Concurrency int
}

// RunService starts tool runs against the catalog and tracks them
type RunService struct {
	catalog *config.Catalog
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*orchestrator.Orchestrator // toolID -> running orchestrator
	closed bool
	log    *logger.Logger
}

// New creates a RunService. Background runs live until Close.
func New(catalog *config.Catalog, opts Options) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		catalog: catalog,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*orchestrator.Orchestrator),
		log:     logger.New().With("component", "runs"),
	}
}

// Tools returns the catalog entries
func (s *RunService) Tools() []probe.Tool {
	return append([]probe.Tool(nil), s.catalog.Tools...)
}

// Latest returns the most recent snapshot for a tool
func (s *RunService) Latest(toolID string) (probe.TestRun, error) {
	if _, ok := s.catalog.Find(toolID); !ok {
		return probe.TestRun{}, fmt.Errorf("%w: %s", ErrToolNotFound, toolID)
	}
	if o := s.running(toolID); o != nil {
		return o.Snapshot(), nil
	}
	if s.opts.Feed != nil {
		if run, ok := s.opts.Feed.Latest(toolID); ok {
			return run, nil
		}
	}
	return probe.TestRun{}, fmt.Errorf("%w: no run recorded for %s", ErrToolNotFound, toolID)
}

// Runs returns the latest snapshot of every tool that has run
func (s *RunService) Runs() []probe.TestRun {
	if s.opts.Feed == nil {
		return []probe.TestRun{}
	}
	return s.opts.Feed.All()
}

// Start launches a run for one tool in the background and returns its
// first snapshot
func (s *RunService) Start(toolID string) (probe.TestRun, error) {
	tool, ok := s.catalog.Find(toolID)
	if !ok {
		return probe.TestRun{}, fmt.Errorf("%w: %s", ErrToolNotFound, toolID)
	}
	o, err := s.claim(tool)
	if err != nil {
		return probe.TestRun{}, err
	}

	go func() {
		defer s.release(tool.ID)
		run := o.Run(s.ctx)
		s.log.Info("Run %s for %s finished: %d passed, %d warnings, %d failed",
			run.ID, run.ToolID, run.Counts.Pass, run.Counts.Warn, run.Counts.Fail)
	}()
	return o.Snapshot(), nil
}

// StartAll launches every catalog tool that is not already running
func (s *RunService) StartAll() []probe.TestRun {
	started := make([]probe.TestRun, 0, len(s.catalog.Tools))
	for _, tool := range s.catalog.Tools {
		run, err := s.Start(tool.ID)
		if err != nil {
			s.log.Warn("Skipping %s: %v", tool.ID, err)
			continue
		}
		started = append(started, run)
	}
	return started
}

// RunAll runs the whole catalog and waits for every run to finish
func (s *RunService) RunAll(ctx context.Context) []probe.TestRun {
	return s.RunTools(ctx, s.catalog.Tools)
}

// RunTools runs tools and waits for them. Tools that are already running
// are skipped. Close cancels these runs as well.
func (s *RunService) RunTools(ctx context.Context, tools []probe.Tool) []probe.TestRun {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	claimed := make([]probe.Tool, 0, len(tools))
	orchestrators := make(map[string]*orchestrator.Orchestrator)
	for _, tool := range tools {
		o, err := s.claim(tool)
		if err != nil {
			s.log.Warn("Skipping %s: %v", tool.ID, err)
			continue
		}
		claimed = append(claimed, tool)
		orchestrators[tool.ID] = o
	}
	defer func() {
		for id := range orchestrators {
			s.release(id)
		}
	}()

	return orchestrator.RunAll(ctx, claimed, func(tool probe.Tool) *orchestrator.Orchestrator {
		return orchestrators[tool.ID]
	}, s.opts.Concurrency)
}

// Close cancels every claimed run and waits for them to finalize
func (s *RunService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// claim reserves tool for one run and joins the wait group under the lock
// Close takes
func (s *RunService) claim(tool probe.Tool) (*orchestrator.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, busy := s.active[tool.ID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, tool.ID)
	}
	o := orchestrator.New(tool, s.orchestratorOptions())
	s.active[tool.ID] = o
	s.wg.Add(1)
	return o, nil
}

// release ends a claim
func (s *RunService) release(toolID string) {
	s.mu.Lock()
	delete(s.active, toolID)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *RunService) running(toolID string) *orchestrator.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[toolID]
}

func (s *RunService) orchestratorOptions() orchestrator.Options {
	opts := orchestrator.Options{
		Driver:    s.opts.Driver,
		Fixtures:  s.opts.Fixtures,
		Artifacts: s.opts.Artifacts,
		Notifier:  s.opts.Notifier,
	}
	if s.opts.Feed != nil {
		opts.Publisher = s.opts.Feed
	}
	return opts
}
