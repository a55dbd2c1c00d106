package pwdriver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

var (
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrForeignHandle   = fmt.Errorf("handle was not issued by the playwright driver")
)

// Options configure how the driver reaches a browser
type Options struct {
	// Endpoint is a playwright run-server websocket URL; empty launches a local Chromium
	Endpoint          string
	Headless          bool
	ConnectRetries    int
	RetryDelay        time.Duration
	ConnectTimeout    time.Duration
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
}

// managedSession is one browser context and its page, shared by every
// generation of handle that points at it
type managedSession struct {
	ID           string
	Context      playwright.BrowserContext
	Page         playwright.Page
	generation   int
	intercepting atomic.Pointer[target.Seam]
	activity     *target.ActivityLog
	mu           sync.Mutex
}

// Driver implements target.Driver on top of playwright-go
type Driver struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	opts     Options
	sessions map[string]*managedSession // sessionID -> session
	mu       sync.RWMutex
	log      *logger.Logger
}

var _ target.Driver = (*Driver)(nil)

// New starts playwright and connects to (or launches) a browser
func New(opts Options) (*Driver, error) {
	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 4 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 5 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	d := &Driver{
		pw:       pw,
		opts:     opts,
		sessions: make(map[string]*managedSession),
		log:      logger.New().With("driver", "playwright"),
	}
	browser, err := d.connect()
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}
	d.browser = browser
	return d, nil
}

// Name identifies the driver in logs and run metadata
func (d *Driver) Name() string {
	return "playwright"
}

// connect launches a local browser or dials the configured run-server with retries
func (d *Driver) connect() (playwright.Browser, error) {
	if d.opts.Endpoint == "" {
		d.log.Info("Launching local Chromium (headless: %v)", d.opts.Headless)
		browser, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(d.opts.Headless),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to launch chromium: %w", err)
		}
		return browser, nil
	}

	endpointURL := d.opts.Endpoint
	if !strings.Contains(endpointURL, "launch-options") {
		sep := "?"
		if strings.Contains(endpointURL, "?") {
			sep = "&"
		}
		endpointURL += sep + "launch-options=" + url.QueryEscape(`{"channel":"chromium"}`)
	}
	d.log.Info("Connecting to Playwright endpoint: %s", endpointURL)

	var browser playwright.Browser
	var connectErr error
	for attempt := 0; attempt < d.opts.ConnectRetries; attempt++ {
		timeout := float64(d.opts.ConnectTimeout.Milliseconds())
		browser, connectErr = d.pw.Chromium.Connect(endpointURL, playwright.BrowserTypeConnectOptions{
			Timeout: &timeout,
		})
		if connectErr == nil {
			d.log.Info("Connected to Playwright on attempt %d", attempt+1)
			break
		}

		if isRetryable(connectErr) && attempt < d.opts.ConnectRetries-1 {
			d.log.Warn("Connection attempt %d/%d failed: %v. Retrying in %v...",
				attempt+1, d.opts.ConnectRetries, connectErr, d.opts.RetryDelay)
			time.Sleep(d.opts.RetryDelay)
			continue
		}
		d.log.Error("Connection attempt %d/%d failed: %v. Giving up.", attempt+1, d.opts.ConnectRetries, connectErr)
		break
	}
	if connectErr != nil {
		return nil, fmt.Errorf("failed to connect to Playwright after %d attempts: %w", d.opts.ConnectRetries, connectErr)
	}

	browser.Once("disconnected", func() {
		d.log.Warn("Browser disconnected, dropping %d sessions", d.sessionCount())
		d.mu.Lock()
		d.sessions = make(map[string]*managedSession)
		d.mu.Unlock()
	})
	return browser, nil
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "socket hang up") ||
		strings.Contains(msg, "websocket: bad handshake") ||
		strings.Contains(msg, "reset by peer") ||
		strings.Contains(msg, "network is unreachable")
}

// Acquire opens a fresh browser context, navigates it to url and returns the
// first-generation handle
func (d *Driver) Acquire(ctx context.Context, url string) (target.Handle, error) {
	if d.browser == nil || !d.browser.IsConnected() {
		return nil, fmt.Errorf("%w: browser is not connected", target.ErrTargetDetached)
	}

	opts := playwright.BrowserNewContextOptions{}
	if d.opts.UserAgent != "" {
		opts.UserAgent = playwright.String(d.opts.UserAgent)
	}
	if d.opts.ViewportWidth > 0 && d.opts.ViewportHeight > 0 {
		opts.Viewport = &playwright.Size{Width: d.opts.ViewportWidth, Height: d.opts.ViewportHeight}
	}
	bctx, err := d.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	activity := &target.ActivityLog{}
	watchActivity(page, activity)
	if err := d.navigate(ctx, page, url); err != nil {
		_ = bctx.Close()
		return nil, err
	}

	sess := &managedSession{
		ID:         uuid.New().String(),
		Context:    bctx,
		Page:       page,
		generation: 1,
		activity:   activity,
	}
	bctx.OnPage(func(p playwright.Page) {
		sess.mu.Lock()
		main := sess.Page
		sess.mu.Unlock()
		if p == main {
			return
		}
		if seam := sess.intercepting.Load(); seam != nil {
			seam.Observe(target.Observation{Kind: target.ObservedPopup, URL: p.URL()})
			_ = p.Close()
		}
	})
	bctx.Once("close", func() {
		d.log.Debug("Context for session %s closed", sess.ID)
		d.forget(sess.ID)
	})

	d.mu.Lock()
	d.sessions[sess.ID] = sess
	d.mu.Unlock()

	d.log.Debug("Acquired session %s at %s", sess.ID, url)
	return newHandle(d, sess, sess.generation), nil
}

// watchActivity feeds the page's console messages and requests into log
func watchActivity(page playwright.Page, log *target.ActivityLog) {
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		log.AddConsole(msg.Type(), msg.Text())
	})
	page.OnRequest(func(req playwright.Request) {
		log.AddRequest(req.Method(), req.URL())
	})
}

// Reacquire revokes the stale handle, reloads url into its context and
// returns the next generation
func (d *Driver) Reacquire(ctx context.Context, stale target.Handle, url string) (target.Handle, error) {
	old, ok := stale.(*Handle)
	if !ok {
		return nil, ErrForeignHandle
	}
	old.lease.Revoke()

	sess, err := d.findSession(old.session.ID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.intercepting.Store(nil)

	if sess.Page == nil || sess.Page.IsClosed() {
		page, err := sess.Context.NewPage()
		if err != nil {
			return nil, fmt.Errorf("failed to reopen page for session %s: %w", sess.ID, target.Classify(err))
		}
		watchActivity(page, sess.activity)
		sess.Page = page
	}
	if err := d.navigate(ctx, sess.Page, url); err != nil {
		return nil, err
	}
	sess.generation++
	d.log.Info("Re-acquired session %s at %s (generation %d)", sess.ID, url, sess.generation)
	return newHandle(d, sess, sess.generation), nil
}

// Release closes the handle's browser context
func (d *Driver) Release(h target.Handle) error {
	ph, ok := h.(*Handle)
	if !ok {
		return ErrForeignHandle
	}
	ph.lease.Revoke()
	sess, err := d.findSession(ph.session.ID)
	if err != nil {
		return nil
	}
	d.forget(sess.ID)
	if err := sess.Context.Close(); err != nil {
		return fmt.Errorf("failed to close context for session %s: %w", sess.ID, err)
	}
	return nil
}

// Close releases every session, the browser and the playwright process
func (d *Driver) Close() error {
	d.mu.Lock()
	sessions := make([]*managedSession, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.sessions = make(map[string]*managedSession)
	d.mu.Unlock()

	var errs []string
	for _, s := range sessions {
		if err := s.Context.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("session %s: %v", s.ID, err))
		}
	}
	if d.browser != nil && d.browser.IsConnected() {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("browser: %v", err))
		}
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, fmt.Sprintf("playwright: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed closing playwright driver: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (d *Driver) navigate(ctx context.Context, page playwright.Page, url string) error {
	_, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeoutMillis(ctx, d.opts.NavigationTimeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, target.Classify(err))
	}
	return nil
}

func (d *Driver) findSession(id string) (*managedSession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (d *Driver) forget(id string) {
	d.mu.Lock()
	delete(d.sessions, id)
	d.mu.Unlock()
}

func (d *Driver) sessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// timeoutMillis bounds a playwright timeout by the context deadline
func timeoutMillis(ctx context.Context, def time.Duration) float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < def {
			def = remaining
		}
	}
	if def < time.Millisecond {
		def = time.Millisecond
	}
	return float64(def.Milliseconds())
}
