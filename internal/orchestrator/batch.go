package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Builder creates the orchestrator for one tool
type Builder func(tool probe.Tool) *Orchestrator

// RunAll runs every tool in its own orchestrator, at most limit at a time
// (0 means unbounded). Runs share nothing; results keep the input order.
func RunAll(ctx context.Context, tools []probe.Tool, build Builder, limit int) []probe.TestRun {
	runs := make([]probe.TestRun, len(tools))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, tool := range tools {
		o := build(tool)
		g.Go(func() error {
			runs[i] = o.Run(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return runs
}
