package cdpdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// Handle is one generation of a chromedp tab
type Handle struct {
	driver *Driver
	tab    *tab
	lease  *target.Lease
}

var _ target.Handle = (*Handle)(nil)

func newHandle(d *Driver, t *tab, generation int) *Handle {
	return &Handle{driver: d, tab: t, lease: target.NewLease(generation)}
}

func (h *Handle) ID() string {
	return h.tab.id
}

func (h *Handle) Generation() int {
	return h.lease.Generation()
}

func (h *Handle) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := h.lease.Check(); err != nil {
		return err
	}
	if h.tab.ctx.Err() != nil {
		return fmt.Errorf("%w: tab %s is closed", target.ErrTargetDetached, h.tab.id)
	}
	actx, cancel := actionContext(ctx, h.tab.ctx, h.driver.opts.ActionTimeout)
	defer cancel()
	return target.Classify(chromedp.Run(actx, actions...))
}

// eval runs script with arg and decodes the JSON result into out
func (h *Handle) eval(ctx context.Context, script string, arg interface{}, out interface{}) error {
	expr, err := target.Invocation(script, arg)
	if err != nil {
		return err
	}
	var raw []byte
	if err := h.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (h *Handle) Locate(ctx context.Context, q target.Query) (target.ElementRef, error) {
	refID := uuid.New().String()[:8]
	var found *target.LocateResult
	if err := h.eval(ctx, target.LocateScript, target.NewLocateArgs(q, refID), &found); err != nil {
		return target.ElementRef{}, fmt.Errorf("locate %s: %w", q.Role, err)
	}
	if found == nil {
		return target.ElementRef{}, fmt.Errorf("%w: %s matching %s", target.ErrElementNotFound, q.Role, strings.Join(q.Hints, ", "))
	}
	return target.ElementRef{ID: refID, Role: q.Role, Label: found.Label, Hint: found.Hint}, nil
}

// SetFiles uploads the fixture from disk, spilling in-memory data to a temp file first
func (h *Handle) SetFiles(ctx context.Context, ref target.ElementRef, f probe.FixtureFile) error {
	path := f.Path
	if path == "" {
		dir, err := os.MkdirTemp("", "toolprobe-upload-")
		if err != nil {
			return fmt.Errorf("staging fixture: %w", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return fmt.Errorf("staging fixture: %w", err)
		}
	}
	if err := h.run(ctx, chromedp.SetUploadFiles(ref.Selector(), []string{path}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("set files on %s: %w", ref.Hint, err)
	}
	return nil
}

func (h *Handle) SelectOption(ctx context.Context, ref target.ElementRef, value string) error {
	var res string
	if err := h.eval(ctx, target.SelectScript, map[string]string{"selector": ref.Selector(), "value": value}, &res); err != nil {
		return fmt.Errorf("select %q: %w", value, err)
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

func (h *Handle) Click(ctx context.Context, ref target.ElementRef) error {
	if err := h.run(ctx, chromedp.Click(ref.Selector(), chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		// fall back to a script click for elements chromedp considers obscured
		var clicked bool
		if evalErr := h.eval(ctx, target.ClickScript, ref.Selector(), &clicked); evalErr != nil || !clicked {
			return fmt.Errorf("click %s: %w", ref.Hint, err)
		}
	}
	return nil
}

func (h *Handle) Snapshot(ctx context.Context) (target.Snapshot, error) {
	snap := target.Snapshot{TakenAt: time.Now()}
	var raw []byte
	expr, _ := target.Invocation(target.TextScript, nil)
	err := h.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate(expr, &raw),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return target.Snapshot{}, err
	}
	_ = json.Unmarshal(raw, &snap.Text)
	return snap, nil
}

func (h *Handle) InterceptNavigation(ctx context.Context) (*target.Seam, error) {
	if err := h.eval(ctx, target.InstallSeamScript, nil, nil); err != nil {
		return nil, fmt.Errorf("install navigation seam: %w", err)
	}

	collect := func(ctx context.Context) ([]target.Observation, error) {
		var urls []string
		if err := h.eval(ctx, target.CollectSeamScript, nil, &urls); err != nil {
			return nil, err
		}
		out := make([]target.Observation, 0, len(urls))
		for _, u := range urls {
			out = append(out, target.Observation{Kind: target.ObservedWindowOpen, URL: u, At: time.Now()})
		}
		return out, nil
	}

	var seam *target.Seam
	seam = target.NewSeam(collect, func() error {
		if h.tab.intercepting() == seam {
			h.tab.setIntercepting(nil)
		}
		if h.lease.Check() != nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.driver.opts.ActionTimeout)
		defer cancel()
		if err := h.eval(ctx, target.RestoreSeamScript, nil, nil); err != nil {
			return fmt.Errorf("restore navigation seam: %w", err)
		}
		return nil
	})
	h.tab.setIntercepting(seam)
	return seam, nil
}

func (h *Handle) Signal(ctx context.Context, sig target.Signal) error {
	if err := h.eval(ctx, target.SignalScript, string(sig), nil); err != nil {
		return fmt.Errorf("signal %s: %w", sig, err)
	}
	return nil
}

func (h *Handle) LocalStorage(ctx context.Context, key string) (string, error) {
	var v string
	if err := h.eval(ctx, target.StorageScript, key, &v); err != nil {
		return "", fmt.Errorf("read localStorage %s: %w", key, err)
	}
	return v, nil
}

func (h *Handle) Capture(ctx context.Context) (target.Capture, error) {
	var out target.Capture
	var html string
	err := h.run(ctx,
		chromedp.Location(&out.URL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&out.Screenshot, 90),
	)
	if err != nil {
		return target.Capture{}, err
	}
	if out.Markdown, err = target.RenderMarkdown(html); err != nil {
		return out, err
	}
	return out, nil
}

// DrainActivity returns the tab's buffered console errors and requests
func (h *Handle) DrainActivity() target.Activity {
	if h.lease.Check() != nil {
		return target.Activity{}
	}
	return h.tab.activity.Drain()
}
