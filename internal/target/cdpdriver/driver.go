package cdpdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// Options configure the chromedp allocator
type Options struct {
	// RemoteURL is a devtools websocket or http endpoint; empty starts a local Chrome
	RemoteURL         string
	Headless          bool
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
}

type tab struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	generation int
	seam       *target.Seam
	activity   target.ActivityLog
	mu         sync.Mutex
}

func (t *tab) intercepting() *target.Seam {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seam
}

func (t *tab) setIntercepting(s *target.Seam) {
	t.mu.Lock()
	t.seam = s
	t.mu.Unlock()
}

// Driver implements target.Driver over the Chrome DevTools Protocol
type Driver struct {
	opts        Options
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[string]*tab
	mu          sync.Mutex
	log         *logger.Logger
}

var _ target.Driver = (*Driver)(nil)

// New prepares an allocator; the browser itself starts with the first Acquire
func New(opts Options) *Driver {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 5 * time.Second
	}

	var allocCtx context.Context
	var cancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
			execOpts = append(execOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
		}
		allocCtx, cancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	return &Driver{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: cancel,
		tabs:        make(map[string]*tab),
		log:         logger.New().With("driver", "chromedp"),
	}
}

func (d *Driver) Name() string {
	return "chromedp"
}

// Acquire opens a new tab and navigates it to url
func (d *Driver) Acquire(ctx context.Context, url string) (target.Handle, error) {
	if err := d.allocCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: allocator closed", target.ErrTargetDetached)
	}
	t := &tab{}
	if err := d.openTab(ctx, url, t); err != nil {
		return nil, err
	}
	t.id = uuid.New().String()
	t.generation = 1

	d.mu.Lock()
	d.tabs[t.id] = t
	d.mu.Unlock()

	d.log.Debug("Acquired tab %s at %s", t.id, url)
	return newHandle(d, t, t.generation), nil
}

// Reacquire navigates the stale handle's tab again, reopening it when it was closed
func (d *Driver) Reacquire(ctx context.Context, stale target.Handle, url string) (target.Handle, error) {
	old, ok := stale.(*Handle)
	if !ok {
		return nil, fmt.Errorf("handle was not issued by the chromedp driver")
	}
	old.lease.Revoke()
	t := old.tab
	t.setIntercepting(nil)

	if t.ctx.Err() != nil {
		if err := d.openTab(ctx, url, t); err != nil {
			return nil, err
		}
	} else if err := d.navigate(ctx, t.ctx, url); err != nil {
		return nil, err
	}

	t.generation++
	d.log.Info("Re-acquired tab %s at %s (generation %d)", t.id, url, t.generation)
	return newHandle(d, t, t.generation), nil
}

// Release closes the handle's tab
func (d *Driver) Release(h target.Handle) error {
	ch, ok := h.(*Handle)
	if !ok {
		return fmt.Errorf("handle was not issued by the chromedp driver")
	}
	ch.lease.Revoke()
	d.mu.Lock()
	delete(d.tabs, ch.tab.id)
	d.mu.Unlock()
	ch.tab.cancel()
	return nil
}

// Close shuts every tab and the browser
func (d *Driver) Close() error {
	d.mu.Lock()
	for id, t := range d.tabs {
		t.cancel()
		delete(d.tabs, id)
	}
	d.mu.Unlock()
	d.allocCancel()
	return nil
}

// openTab starts a new browser tab for t, keeping t's activity log and seam
func (d *Driver) openTab(ctx context.Context, url string, t *tab) error {
	tctx, cancel := chromedp.NewContext(d.allocCtx, chromedp.WithLogf(d.log.Debug))
	t.ctx, t.cancel = tctx, cancel

	chromedp.ListenTarget(tctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventWindowOpen:
			if seam := t.intercepting(); seam != nil {
				seam.Observe(target.Observation{Kind: target.ObservedPopup, URL: e.URL})
			}
		case *runtime.EventConsoleAPICalled:
			t.activity.AddConsole(string(e.Type), consoleText(e.Args))
		case *runtime.EventExceptionThrown:
			if d := e.ExceptionDetails; d != nil {
				text := d.Text
				if d.Exception != nil && d.Exception.Description != "" {
					text = d.Exception.Description
				}
				t.activity.AddConsole("error", text)
			}
		case *network.EventRequestWillBeSent:
			if e.Request != nil {
				t.activity.AddRequest(e.Request.Method, e.Request.URL)
			}
		}
	})

	if err := d.navigate(ctx, tctx, url); err != nil {
		cancel()
		return err
	}
	return nil
}

func (d *Driver) navigate(ctx, tctx context.Context, url string) error {
	actx, cancel := actionContext(ctx, tctx, d.opts.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(actx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, target.Classify(err))
	}
	return nil
}

// consoleText joins console arguments the way the devtools console prints them
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case a == nil:
		case len(a.Value) > 0:
			parts = append(parts, strings.Trim(string(a.Value), `"`))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}

// actionContext derives a bounded context from the tab that also ends when
// the caller's context does
func actionContext(caller, tctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithTimeout(tctx, timeout)
	stop := context.AfterFunc(caller, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}
