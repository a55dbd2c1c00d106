package tracker

import "github.com/trevnoctilla/toolprobe/pkg/probe"

// RunTracker keeps the most recent run snapshot per tool
type RunTracker interface {
	// Update stores run if it is the tool's current or a newer run
	Update(run probe.TestRun) bool
	Latest(toolID string) (probe.TestRun, bool)
	All() []probe.TestRun
	Remove(toolID string)
}
