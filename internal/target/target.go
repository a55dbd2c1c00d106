package target

import (
	"context"
	"errors"
	"time"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

var (
	// ErrElementNotFound is a normal locate result; callers decide its severity
	ErrElementNotFound = errors.New("element not found")
	// ErrTargetDetached means the handle no longer points at a live context
	ErrTargetDetached = errors.New("target detached")
)

// Role narrows which elements a query considers
type Role string

const (
	RoleFileInput Role = "file"
	RoleSelect    Role = "select"
	RoleButton    Role = "button"
	RoleAction    Role = "action" // buttons and links
	RoleModal     Role = "modal"
)

// Query describes one heuristic element lookup
type Query struct {
	Role  Role
	Hints []string
	// Within restricts the search to descendants of a CSS selector
	Within string
	// Exclude drops candidates whose text contains any of these
	Exclude []string
	// EnabledOnly skips disabled controls
	EnabledOnly bool
}

// ElementRef is an opaque reference to a located element, valid for the
// handle that produced it
type ElementRef struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// Selector returns the CSS selector that addresses the referenced element
func (r ElementRef) Selector() string {
	return `[` + RefAttr + `="` + r.ID + `"]`
}

// Snapshot is a cheap text view of the target at one instant
type Snapshot struct {
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	HTML    string    `json:"-"`
	TakenAt time.Time `json:"takenAt"`
}

// Signal is a synthetic window/document lifecycle event
type Signal string

const (
	SignalBlur    Signal = "blur"
	SignalHidden  Signal = "visibility-hidden"
	SignalVisible Signal = "visibility-visible"
	SignalFocus   Signal = "focus"
)

// ReturnSequence is the exact order a user returning from another tab produces
var ReturnSequence = []Signal{SignalBlur, SignalHidden, SignalVisible, SignalFocus}

// Capture is a diagnostic dump of the target
type Capture struct {
	URL        string
	Markdown   string
	Screenshot []byte
}

// Handle is a borrowed reference to one target context. After the driver
// re-acquires the target, every call on the previous handle returns
// ErrTargetDetached.
type Handle interface {
	ID() string
	Generation() int
	Locate(ctx context.Context, q Query) (ElementRef, error)
	SetFiles(ctx context.Context, ref ElementRef, f probe.FixtureFile) error
	SelectOption(ctx context.Context, ref ElementRef, value string) error
	Click(ctx context.Context, ref ElementRef) error
	Snapshot(ctx context.Context) (Snapshot, error)
	InterceptNavigation(ctx context.Context) (*Seam, error)
	Signal(ctx context.Context, sig Signal) error
	LocalStorage(ctx context.Context, key string) (string, error)
	Capture(ctx context.Context) (Capture, error)
	// DrainActivity returns the console errors and requests seen since the
	// previous drain
	DrainActivity() Activity
}

// Driver acquires handles on a browser backend
type Driver interface {
	Name() string
	Acquire(ctx context.Context, url string) (Handle, error)
	// Reacquire reloads url into the stale handle's context and returns a
	// fresh handle; the stale one is revoked
	Reacquire(ctx context.Context, stale Handle, url string) (Handle, error)
	Release(h Handle) error
	Close() error
}
