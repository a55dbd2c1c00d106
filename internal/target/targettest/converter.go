package targettest

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// ConverterConfig shapes the scripted converter page
type ConverterConfig struct {
	// Consent shows a cookie banner until "Reject all" is clicked
	Consent bool
	// FailFormats render a conversion error for these output formats
	FailFormats []string
	// NoModal makes the download click show nothing
	NoModal bool
	// Redirect makes the view-ad click navigate to /ad-success
	Redirect bool
	// AdURL is what the view-ad click tries to open
	AdURL string
	// ConsoleErrors are logged at error level when the keyed format converts
	ConsoleErrors map[string]string
}

// Converter scripts the product's video converter page: upload form,
// conversion result, the ad gate modal and the post-ad redirect
type Converter struct {
	*Page
	cfg ConverterConfig
	url string

	// OnConvert runs after every conversion trigger click, counted from 1
	OnConvert func(n int)

	mu          sync.Mutex
	consent     bool
	format      string
	conversions int
}

// NewConverter renders a fresh converter at toolURL
func NewConverter(toolURL string, cfg ConverterConfig) *Converter {
	if cfg.AdURL == "" {
		cfg.AdURL = "https://ads.example.com/watch"
	}
	c := &Converter{cfg: cfg, url: toolURL, consent: cfg.Consent, format: "mp4"}
	c.Page = NewPage(toolURL, "")
	c.Page.OnSignal = c.onSignal
	c.Page.Add(
		&Element{Role: target.RoleButton, Label: "Reject all", OnClick: c.rejectConsent},
		&Element{Role: target.RoleFileInput},
		&Element{Role: target.RoleSelect, Label: "Output Format", Options: probe.VideoFormats},
		&Element{Role: target.RoleSelect, Label: "Quality", Options: []string{"95", "85", "75", "60", "40"}},
		&Element{Role: target.RoleSelect, Label: "Compression", Options: []string{"none", "light", "medium", "heavy", "web"}},
		&Element{Role: target.RoleButton, Label: "Convert to MP4", OnClick: c.convert},
		&Element{Role: target.RoleButton, Label: "Remove file", OnClick: c.reset},
		&Element{Role: target.RoleButton, Label: "Download file", OnClick: c.download},
		&Element{Role: target.RoleButton, Label: "View Ad", InModal: true, OnClick: c.viewAd},
	)
	c.SetBody(c.form())
	return c
}

// Reload renders the tool page from scratch; use it as Driver.OnReacquire
func (c *Converter) Reload(p *Page, _ string) {
	p.SetBody(c.form())
}

// Conversions returns how many times the conversion was triggered
func (c *Converter) Conversions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversions
}

func (c *Converter) rejectConsent(p *Page) {
	c.mu.Lock()
	c.consent = false
	c.mu.Unlock()
	p.SetBody(c.form())
}

func (c *Converter) convert(p *Page) {
	format := p.Selected()["Output Format"]
	if format == "" {
		format = "mp4"
	}
	c.mu.Lock()
	c.conversions++
	n := c.conversions
	c.format = format
	hook := c.OnConvert
	c.mu.Unlock()

	p.Request("POST", c.endpoint("/api/convert-video"))
	p.Request("GET", c.endpoint("/_next/static/chunks/main.js"))
	p.Request("GET", c.endpoint("/api/video-progress/job-"+format))
	p.Request("GET", c.endpoint("/api/video-progress/job-"+format))
	if msg := c.cfg.ConsoleErrors[format]; msg != "" {
		p.Console("error", msg)
	}

	if c.fails(format) {
		p.SetBody(c.settings() + `<div class="result"><p>Conversion failed: unsupported codec</p><button>Remove file</button></div>`)
	} else {
		p.SetBody(c.completed(false))
	}
	if hook != nil {
		hook(n)
	}
}

func (c *Converter) reset(p *Page) {
	p.SetBody(c.form())
}

func (c *Converter) download(p *Page) {
	if c.cfg.NoModal {
		return
	}
	p.SetBody(c.completed(true))
}

func (c *Converter) viewAd(p *Page) {
	p.Open(c.cfg.AdURL)
	if !c.cfg.Redirect {
		return
	}
	p.SetStorage(probe.DefaultDownloadURLKey, c.url+"/download/result."+c.currentFormat())
	if u, err := url.Parse(c.url); err == nil {
		u.Path = probe.DefaultPostAdRoute
		p.SetURL(u.String())
	}
	p.SetBody(`<h1>Thanks for watching</h1>`)
}

func (c *Converter) endpoint(path string) string {
	u, err := url.Parse(c.url)
	if err != nil {
		return path
	}
	u.Path = path
	return u.String()
}

func (c *Converter) onSignal(p *Page, sig target.Signal) {
	if sig == target.SignalFocus && strings.Contains(p.HTML(), "MonetizationModal") {
		p.SetBody(c.completed(false))
	}
}

func (c *Converter) fails(format string) bool {
	for _, f := range c.cfg.FailFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func (c *Converter) currentFormat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

func (c *Converter) form() string {
	c.mu.Lock()
	consent := c.consent
	c.mu.Unlock()
	var b strings.Builder
	if consent {
		b.WriteString(`<div id="cookie-banner"><p>We use cookies</p><button>Accept all</button><button>Reject all</button></div>`)
	}
	b.WriteString(c.settings())
	b.WriteString(`<input type="file" id="video-file" accept="video/*">`)
	b.WriteString(`<button>Convert to MP4</button>`)
	return b.String()
}

func (c *Converter) settings() string {
	var b strings.Builder
	b.WriteString(`<h1>Universal Video Converter</h1>`)
	b.WriteString(`<label for="fmt">Output Format</label><select id="fmt">`)
	for _, f := range probe.VideoFormats {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, f, strings.ToUpper(f))
	}
	b.WriteString(`</select>`)
	b.WriteString(`<label for="quality">Quality</label><select id="quality">`)
	for _, q := range []string{"95", "85", "75", "60", "40"} {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, q, q)
	}
	b.WriteString(`</select>`)
	b.WriteString(`<label for="compression">Compression</label><select id="compression">`)
	for _, l := range []string{"none", "light", "medium", "heavy", "web"} {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, l, l)
	}
	b.WriteString(`</select>`)
	return b.String()
}

func (c *Converter) completed(modal bool) string {
	format := strings.ToUpper(c.currentFormat())
	body := c.settings() +
		`<div class="result"><p>Conversion completed successfully 100%</p>` +
		`<p>Original 12.5 MB -> 3.1 MB (75% smaller)</p>` +
		`<button>Download ` + format + `</button><button>Remove file</button></div>`
	if modal {
		body += `<div class="MonetizationModal" role="dialog"><p>Watch a short ad or Pay $1 to download</p>` +
			`<button>View Ad</button><a href="#">Open ad in new tab</a></div>`
	}
	return body
}
