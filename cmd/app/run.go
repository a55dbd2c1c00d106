package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trevnoctilla/toolprobe/config"
	"github.com/trevnoctilla/toolprobe/pkg/format"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

var runCmd = &cobra.Command{
	Use:   "run [tool_id...]",
	Short: "Run tools once and print their outcomes",
	Long:  "Runs the named tools, or the whole catalog when none is given. Exits non-zero when any outcome failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		tools, err := selectTools(a.catalog, args)
		if err != nil {
			return err
		}

		runs := a.runs.RunTools(ctx, tools)

		failed, cancelled := 0, 0
		for _, run := range runs {
			format.LogRun(log, run)
			switch {
			case run.Counts.Fail > 0:
				failed++
			case run.Cancelled:
				cancelled++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d runs had failures", failed, len(runs))
		}
		if cancelled > 0 {
			return fmt.Errorf("%d of %d runs were cancelled", cancelled, len(runs))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int("concurrency", 0, "maximum concurrent runs (0 keeps the configured value)")
	_ = v().BindPFlag("catalog.concurrency", runCmd.Flags().Lookup("concurrency"))
	rootCmd.AddCommand(runCmd)
}

func selectTools(catalog *config.Catalog, ids []string) ([]probe.Tool, error) {
	if len(ids) == 0 {
		return catalog.Tools, nil
	}
	tools := make([]probe.Tool, 0, len(ids))
	for _, id := range ids {
		tool, ok := catalog.Find(id)
		if !ok {
			return nil, fmt.Errorf("tool %q not found in catalog", id)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}
