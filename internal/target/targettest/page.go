// Package targettest provides a scripted in-memory target for tests.
package targettest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/trevnoctilla/toolprobe/internal/target"
)

// Element is a control Locate can find. An empty Label matches any hint.
type Element struct {
	Role     target.Role
	Label    string
	Disabled bool
	// InModal marks elements that Within-scoped queries can see
	InModal bool
	// Options restricts SelectOption; empty accepts any value
	Options []string
	OnClick func(p *Page)
}

// Call is one handle method invocation
type Call struct {
	Method     string
	Generation int
	Stale      bool
}

// Page is the scripted state shared by every generation of a fake handle
type Page struct {
	mu         sync.Mutex
	url        string
	html       string
	text       string
	elements   []*Element
	storage    map[string]string
	selected   map[string]string
	files      []string
	signals    []target.Signal
	opens      []string
	calls      []Call
	seam       *target.Seam
	installs   int
	restores   int
	snapshots  int
	activity   target.ActivityLog
	OnSignal   func(p *Page, sig target.Signal)
	OnSnapshot func(p *Page, n int)
}

// NewPage returns a page at url rendering body
func NewPage(url, body string) *Page {
	p := &Page{
		url:      url,
		storage:  make(map[string]string),
		selected: make(map[string]string),
	}
	p.SetBody(body)
	return p
}

// SetBody replaces the markup; the visible text is derived from it
func (p *Page) SetBody(body string) {
	html := "<html><body>" + body + "</body></html>"
	text := body
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	p.mu.Lock()
	p.html, p.text = html, text
	p.mu.Unlock()
}

// SetURL moves the page to url without touching the body
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Add registers controls
func (p *Page) Add(els ...*Element) {
	p.mu.Lock()
	p.elements = append(p.elements, els...)
	p.mu.Unlock()
}

// Remove drops every control with the given label
func (p *Page) Remove(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.elements[:0]
	for _, el := range p.elements {
		if el.Label != label {
			kept = append(kept, el)
		}
	}
	p.elements = kept
}

// SetStorage stores a localStorage entry
func (p *Page) SetStorage(key, value string) {
	p.mu.Lock()
	p.storage[key] = value
	p.mu.Unlock()
}

// Open simulates window.open; the active seam records it
func (p *Page) Open(url string) {
	p.mu.Lock()
	seam := p.seam
	if seam != nil && !seam.Restored() {
		p.opens = append(p.opens, url)
	}
	p.mu.Unlock()
}

// Popup simulates a popup the driver reports directly
func (p *Page) Popup(url string) {
	p.mu.Lock()
	seam := p.seam
	p.mu.Unlock()
	if seam != nil {
		seam.Observe(target.Observation{Kind: target.ObservedPopup, URL: url})
	}
}

// Console logs a console message at level
func (p *Page) Console(level, text string) {
	p.activity.AddConsole(level, text)
}

// Request logs an outgoing request
func (p *Page) Request(method, url string) {
	p.activity.AddRequest(method, url)
}

// HTML returns the current markup
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

// URL returns the current location
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Selected() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.selected))
	for k, v := range p.selected {
		out[k] = v
	}
	return out
}

func (p *Page) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

func (p *Page) Signals() []target.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]target.Signal(nil), p.signals...)
}

func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// StaleCalls returns the calls made through a revoked handle
func (p *Page) StaleCalls() []Call {
	var stale []Call
	for _, c := range p.Calls() {
		if c.Stale {
			stale = append(stale, c)
		}
	}
	return stale
}

// SeamCounts returns how often a seam was installed and restored
func (p *Page) SeamCounts() (installs, restores int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installs, p.restores
}

func (p *Page) record(method string, generation int, stale bool) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: method, Generation: generation, Stale: stale})
	p.mu.Unlock()
}

func (p *Page) snapshot() target.Snapshot {
	p.mu.Lock()
	p.snapshots++
	n, hook := p.snapshots, p.OnSnapshot
	p.mu.Unlock()
	if hook != nil {
		hook(p, n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return target.Snapshot{URL: p.url, Text: p.text, HTML: p.html, TakenAt: time.Now()}
}

func (p *Page) locate(q target.Query) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements {
		if el.matches(q) {
			return el
		}
	}
	return nil
}

func (p *Page) element(label string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range p.elements {
		if el.Label == label {
			return el
		}
	}
	return nil
}

func (p *Page) installSeam() *target.Seam {
	collect := func(ctx context.Context) ([]target.Observation, error) {
		p.mu.Lock()
		urls := p.opens
		p.opens = nil
		p.mu.Unlock()
		out := make([]target.Observation, 0, len(urls))
		for _, u := range urls {
			out = append(out, target.Observation{Kind: target.ObservedWindowOpen, URL: u, At: time.Now()})
		}
		return out, nil
	}
	var seam *target.Seam
	seam = target.NewSeam(collect, func() error {
		p.mu.Lock()
		p.restores++
		if p.seam == seam {
			p.seam = nil
		}
		p.mu.Unlock()
		return nil
	})
	p.mu.Lock()
	p.installs++
	p.seam = seam
	p.mu.Unlock()
	return seam
}

func (el *Element) matches(q target.Query) bool {
	switch {
	case el.Role == q.Role:
	case q.Role == target.RoleAction && el.Role == target.RoleButton:
	default:
		return false
	}
	if q.EnabledOnly && el.Disabled {
		return false
	}
	if q.Within != "" && !el.InModal {
		return false
	}
	label := strings.ToLower(el.Label)
	for _, x := range q.Exclude {
		if x != "" && strings.Contains(label, strings.ToLower(x)) {
			return false
		}
	}
	if label == "" {
		return true
	}
	for _, h := range q.Hints {
		h = strings.TrimPrefix(strings.TrimPrefix(h, "css:"), "label:")
		if h != "" && strings.Contains(label, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
