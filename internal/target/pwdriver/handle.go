package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Handle is one generation of a playwright session
type Handle struct {
	driver  *Driver
	session *managedSession
	lease   *target.Lease
}

var _ target.Handle = (*Handle)(nil)

func newHandle(d *Driver, s *managedSession, generation int) *Handle {
	return &Handle{driver: d, session: s, lease: target.NewLease(generation)}
}

func (h *Handle) ID() string {
	return h.session.ID
}

func (h *Handle) Generation() int {
	return h.lease.Generation()
}

// page returns the live page or ErrTargetDetached
func (h *Handle) page() (playwright.Page, error) {
	if err := h.lease.Check(); err != nil {
		return nil, err
	}
	h.session.mu.Lock()
	page := h.session.Page
	h.session.mu.Unlock()
	if page == nil || page.IsClosed() {
		return nil, fmt.Errorf("%w: page for session %s is closed", target.ErrTargetDetached, h.session.ID)
	}
	return page, nil
}

func (h *Handle) evaluate(script string, arg interface{}) (interface{}, error) {
	page, err := h.page()
	if err != nil {
		return nil, err
	}
	if arg == nil {
		res, err := page.Evaluate(script)
		return res, target.Classify(err)
	}
	plain, err := target.ScriptArg(arg)
	if err != nil {
		return nil, err
	}
	res, err := page.Evaluate(script, plain)
	return res, target.Classify(err)
}

func (h *Handle) actionTimeout(ctx context.Context) *float64 {
	return playwright.Float(timeoutMillis(ctx, h.driver.opts.ActionTimeout))
}

// Locate runs the heuristic locator script and stamps the match
func (h *Handle) Locate(ctx context.Context, q target.Query) (target.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return target.ElementRef{}, err
	}
	refID := uuid.New().String()[:8]
	res, err := h.evaluate(target.LocateScript, target.NewLocateArgs(q, refID))
	if err != nil {
		return target.ElementRef{}, fmt.Errorf("locate %s: %w", q.Role, err)
	}
	found, ok := res.(map[string]interface{})
	if !ok || found == nil {
		return target.ElementRef{}, fmt.Errorf("%w: %s matching %s", target.ErrElementNotFound, q.Role, strings.Join(q.Hints, ", "))
	}
	ref := target.ElementRef{ID: refID, Role: q.Role}
	ref.Label, _ = found["label"].(string)
	ref.Hint, _ = found["hint"].(string)
	return ref, nil
}

// SetFiles injects the fixture into a file input
func (h *Handle) SetFiles(ctx context.Context, ref target.ElementRef, f probe.FixtureFile) error {
	page, err := h.page()
	if err != nil {
		return err
	}
	loc := page.Locator(ref.Selector())
	opts := playwright.LocatorSetInputFilesOptions{Timeout: h.actionTimeout(ctx)}
	if len(f.Data) > 0 {
		err = loc.SetInputFiles([]playwright.InputFile{{
			Name:     f.Name,
			MimeType: f.MimeType,
			Buffer:   f.Data,
		}}, opts)
	} else {
		err = loc.SetInputFiles(f.Path, opts)
	}
	if err != nil {
		return fmt.Errorf("set files on %s: %w", ref.Hint, target.Classify(err))
	}
	return nil
}

// SelectOption picks an option by value, falling back to a text match
func (h *Handle) SelectOption(ctx context.Context, ref target.ElementRef, value string) error {
	page, err := h.page()
	if err != nil {
		return err
	}
	_, err = page.Locator(ref.Selector()).SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: h.actionTimeout(ctx)},
	)
	if err == nil {
		return nil
	}
	if classified := target.Classify(err); classified != err {
		return classified
	}

	res, evalErr := h.evaluate(target.SelectScript, map[string]string{"selector": ref.Selector(), "value": value})
	if evalErr != nil {
		return fmt.Errorf("select %q: %w", value, evalErr)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: select %s", target.ErrElementNotFound, ref.Hint)
	default:
		return fmt.Errorf("select %q on %s: no such option", value, ref.Hint)
	}
}

// Click clicks the referenced element
func (h *Handle) Click(ctx context.Context, ref target.ElementRef) error {
	page, err := h.page()
	if err != nil {
		return err
	}
	err = page.Locator(ref.Selector()).Click(playwright.LocatorClickOptions{Timeout: h.actionTimeout(ctx)})
	if err != nil {
		return fmt.Errorf("click %s: %w", ref.Hint, target.Classify(err))
	}
	return nil
}

// Snapshot reads url, title, visible text and markup
func (h *Handle) Snapshot(ctx context.Context) (target.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return target.Snapshot{}, err
	}
	page, err := h.page()
	if err != nil {
		return target.Snapshot{}, err
	}
	snap := target.Snapshot{URL: page.URL(), TakenAt: time.Now()}
	if snap.Title, err = page.Title(); err != nil {
		return target.Snapshot{}, target.Classify(err)
	}
	text, err := h.evaluate(target.TextScript, nil)
	if err != nil {
		return target.Snapshot{}, err
	}
	snap.Text, _ = text.(string)
	if snap.HTML, err = page.Content(); err != nil {
		return target.Snapshot{}, target.Classify(err)
	}
	return snap, nil
}

// InterceptNavigation replaces window.open and diverts popups until the
// returned seam is restored
func (h *Handle) InterceptNavigation(ctx context.Context) (*target.Seam, error) {
	if _, err := h.evaluate(target.InstallSeamScript, nil); err != nil {
		return nil, fmt.Errorf("install navigation seam: %w", err)
	}

	collect := func(ctx context.Context) ([]target.Observation, error) {
		res, err := h.evaluate(target.CollectSeamScript, nil)
		if err != nil {
			return nil, err
		}
		urls, _ := res.([]interface{})
		out := make([]target.Observation, 0, len(urls))
		for _, u := range urls {
			s, _ := u.(string)
			out = append(out, target.Observation{Kind: target.ObservedWindowOpen, URL: s, At: time.Now()})
		}
		return out, nil
	}

	var seam *target.Seam
	seam = target.NewSeam(collect, func() error {
		h.session.intercepting.CompareAndSwap(seam, nil)
		if h.lease.Check() != nil {
			// the page this seam lived in is gone
			return nil
		}
		if _, err := h.evaluate(target.RestoreSeamScript, nil); err != nil && !isDetached(err) {
			return fmt.Errorf("restore navigation seam: %w", err)
		}
		return nil
	})
	h.session.intercepting.Store(seam)
	return seam, nil
}

// Signal dispatches a synthetic lifecycle event
func (h *Handle) Signal(ctx context.Context, sig target.Signal) error {
	if _, err := h.evaluate(target.SignalScript, string(sig)); err != nil {
		return fmt.Errorf("signal %s: %w", sig, err)
	}
	return nil
}

// LocalStorage reads one key from the page's localStorage
func (h *Handle) LocalStorage(ctx context.Context, key string) (string, error) {
	res, err := h.evaluate(target.StorageScript, key)
	if err != nil {
		return "", fmt.Errorf("read localStorage %s: %w", key, err)
	}
	s, _ := res.(string)
	return s, nil
}

// Capture dumps markdown and a full-page screenshot
func (h *Handle) Capture(ctx context.Context) (target.Capture, error) {
	page, err := h.page()
	if err != nil {
		return target.Capture{}, err
	}
	out := target.Capture{URL: page.URL()}
	html, err := page.Content()
	if err != nil {
		return target.Capture{}, target.Classify(err)
	}
	if out.Markdown, err = target.RenderMarkdown(html); err != nil {
		return target.Capture{}, err
	}
	out.Screenshot, err = page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  h.actionTimeout(ctx),
	})
	if err != nil {
		return out, fmt.Errorf("screenshot: %w", target.Classify(err))
	}
	return out, nil
}

// DrainActivity returns the session's buffered console errors and requests.
// A stale handle sees nothing.
func (h *Handle) DrainActivity() target.Activity {
	if h.lease.Check() != nil || h.session.activity == nil {
		return target.Activity{}
	}
	return h.session.activity.Drain()
}

func isDetached(err error) bool {
	return errors.Is(err, target.ErrTargetDetached)
}
