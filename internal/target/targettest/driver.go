package targettest

import (
	"context"
	"fmt"
	"sync"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Driver hands out handles onto a single Page
type Driver struct {
	Page *Page
	// AcquireErrs are returned by successive Acquire calls before one succeeds
	AcquireErrs  []error
	ReacquireErr error
	// OnReacquire reloads the page, e.g. back to the tool URL
	OnReacquire func(p *Page, url string)

	mu         sync.Mutex
	current    *Handle
	acquires   int
	reacquires int
	releases   int
}

var _ target.Driver = (*Driver)(nil)

// NewDriver returns a driver over page
func NewDriver(page *Page) *Driver {
	return &Driver{Page: page}
}

func (d *Driver) Name() string {
	return "fake"
}

func (d *Driver) Acquire(ctx context.Context, url string) (target.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires++
	if len(d.AcquireErrs) > 0 {
		err := d.AcquireErrs[0]
		d.AcquireErrs = d.AcquireErrs[1:]
		return nil, err
	}
	d.current = newHandle(d.Page, 1)
	return d.current, nil
}

func (d *Driver) Reacquire(ctx context.Context, stale target.Handle, url string) (target.Handle, error) {
	old, ok := stale.(*Handle)
	if !ok {
		return nil, fmt.Errorf("foreign handle")
	}
	old.lease.Revoke()

	d.mu.Lock()
	d.reacquires++
	err := d.ReacquireErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	d.Page.SetURL(url)
	if d.OnReacquire != nil {
		d.OnReacquire(d.Page, url)
	}
	d.mu.Lock()
	d.current = newHandle(d.Page, old.lease.Generation()+1)
	d.mu.Unlock()
	return d.current, nil
}

func (d *Driver) Release(h target.Handle) error {
	if fh, ok := h.(*Handle); ok {
		fh.lease.Revoke()
	}
	d.mu.Lock()
	d.releases++
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close() error {
	return nil
}

// Detach revokes the current handle as if the page went away
func (d *Driver) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.current.lease.Revoke()
	}
}

// Current returns the most recently issued handle
func (d *Driver) Current() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Counts returns how many acquires, reacquires and releases happened
func (d *Driver) Counts() (acquires, reacquires, releases int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquires, d.reacquires, d.releases
}

// Handle is one generation of a fake target
type Handle struct {
	page  *Page
	lease *target.Lease
}

var _ target.Handle = (*Handle)(nil)

func newHandle(p *Page, generation int) *Handle {
	return &Handle{page: p, lease: target.NewLease(generation)}
}

// NewHandle returns a standalone first-generation handle onto page
func NewHandle(page *Page) *Handle {
	return newHandle(page, 1)
}

// Revoke makes every further call fail with target.ErrTargetDetached
func (h *Handle) Revoke() {
	h.lease.Revoke()
}

func (h *Handle) ID() string {
	return "fake"
}

func (h *Handle) Generation() int {
	return h.lease.Generation()
}

func (h *Handle) check(method string) error {
	err := h.lease.Check()
	h.page.record(method, h.lease.Generation(), err != nil)
	return err
}

func (h *Handle) Locate(ctx context.Context, q target.Query) (target.ElementRef, error) {
	if err := h.check("Locate"); err != nil {
		return target.ElementRef{}, err
	}
	el := h.page.locate(q)
	if el == nil {
		return target.ElementRef{}, fmt.Errorf("%w: %s %v", target.ErrElementNotFound, q.Role, q.Hints)
	}
	return target.ElementRef{ID: el.Label, Role: el.Role, Label: el.Label, Hint: string(el.Role)}, nil
}

func (h *Handle) SetFiles(ctx context.Context, ref target.ElementRef, f probe.FixtureFile) error {
	if err := h.check("SetFiles"); err != nil {
		return err
	}
	h.page.mu.Lock()
	h.page.files = append(h.page.files, f.Name)
	h.page.mu.Unlock()
	return nil
}

func (h *Handle) SelectOption(ctx context.Context, ref target.ElementRef, value string) error {
	if err := h.check("SelectOption"); err != nil {
		return err
	}
	el := h.page.element(ref.Label)
	if el == nil {
		return fmt.Errorf("%w: %s", target.ErrElementNotFound, ref.Label)
	}
	if len(el.Options) > 0 {
		found := false
		for _, o := range el.Options {
			found = found || o == value
		}
		if !found {
			return fmt.Errorf("select %q on %s: no such option", value, ref.Label)
		}
	}
	h.page.mu.Lock()
	h.page.selected[ref.Label] = value
	h.page.mu.Unlock()
	return nil
}

func (h *Handle) Click(ctx context.Context, ref target.ElementRef) error {
	if err := h.check("Click"); err != nil {
		return err
	}
	el := h.page.element(ref.Label)
	if el == nil {
		return fmt.Errorf("%w: %s", target.ErrElementNotFound, ref.Label)
	}
	if el.OnClick != nil {
		el.OnClick(h.page)
	}
	return nil
}

func (h *Handle) Snapshot(ctx context.Context) (target.Snapshot, error) {
	if err := h.check("Snapshot"); err != nil {
		return target.Snapshot{}, err
	}
	return h.page.snapshot(), nil
}

func (h *Handle) InterceptNavigation(ctx context.Context) (*target.Seam, error) {
	if err := h.check("InterceptNavigation"); err != nil {
		return nil, err
	}
	return h.page.installSeam(), nil
}

func (h *Handle) Signal(ctx context.Context, sig target.Signal) error {
	if err := h.check("Signal"); err != nil {
		return err
	}
	h.page.mu.Lock()
	h.page.signals = append(h.page.signals, sig)
	hook := h.page.OnSignal
	h.page.mu.Unlock()
	if hook != nil {
		hook(h.page, sig)
	}
	return nil
}

func (h *Handle) LocalStorage(ctx context.Context, key string) (string, error) {
	if err := h.check("LocalStorage"); err != nil {
		return "", err
	}
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	return h.page.storage[key], nil
}

func (h *Handle) Capture(ctx context.Context) (target.Capture, error) {
	if err := h.check("Capture"); err != nil {
		return target.Capture{}, err
	}
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	return target.Capture{URL: h.page.url, Markdown: h.page.text, Screenshot: []byte("png")}, nil
}

func (h *Handle) DrainActivity() target.Activity {
	if h.check("DrainActivity") != nil {
		return target.Activity{}
	}
	return h.page.activity.Drain()
}
