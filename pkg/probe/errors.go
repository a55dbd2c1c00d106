package probe

import "errors"

// Run-level error taxonomy. Element and detachment errors live with the
// target controller.
var (
	ErrPhaseTimeout         = errors.New("phase timed out")
	ErrFixtureUnavailable   = errors.New("fixture unavailable")
	ErrUnexpectedNavigation = errors.New("unexpected navigation")
	ErrNotifierFailure      = errors.New("notifier failure")
)
