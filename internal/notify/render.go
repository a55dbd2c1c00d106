package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

const (
	DefaultSubject = `[toolprobe] {{ .Run.ToolID }}: {{ .Run.Counts.Pass }} passed, {{ .Run.Counts.Warn }} warnings`

	DefaultText = `Automated run {{ .Run.ID | trunc 8 }} for {{ .Run.ToolID }} completed.

PASS {{ .Run.Counts.Pass }}  WARN {{ .Run.Counts.Warn }}  FAIL {{ .Run.Counts.Fail }}  SKIP {{ .Run.Counts.Skip }}  INFO {{ .Run.Counts.Info }}
Started {{ .Run.StartedAt | date "2006-01-02 15:04:05" }}, took {{ .Duration }}.

{{ range .Run.Outcomes -}}
{{ .Status | printf "%-4s" }} {{ .Name }}: {{ .Message }}
{{ end }}`

	DefaultHTML = `<h2>{{ .Run.ToolID }}: all checks passed</h2>
<p>
  <b>PASS</b> {{ .Run.Counts.Pass }} &middot; <b>WARN</b> {{ .Run.Counts.Warn }} &middot;
  <b>FAIL</b> {{ .Run.Counts.Fail }} &middot; <b>SKIP</b> {{ .Run.Counts.Skip }} &middot; <b>INFO</b> {{ .Run.Counts.Info }}
</p>
<p>Run {{ .Run.ID | trunc 8 }} started {{ .Run.StartedAt | date "2006-01-02 15:04:05" }}, took {{ .Duration }}.</p>
<table border="1" cellpadding="4" cellspacing="0">
  <tr><th>Status</th><th>Check</th><th>Message</th></tr>
  {{- range .Run.Outcomes }}
  <tr><td>{{ .Status }}</td><td>{{ .Name }}</td><td>{{ .Message }}</td></tr>
  {{- end }}
</table>`
)

// Renderer produces subject and bodies from sprig-enabled templates
type Renderer struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Templates overrides the default subject and bodies; empty fields keep the default
type Templates struct {
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	Run      probe.TestRun
	Duration string
}

// NewRenderer parses the templates
func NewRenderer(t Templates) (*Renderer, error) {
	if t.Subject == "" {
		t.Subject = DefaultSubject
	}
	if t.Text == "" {
		t.Text = DefaultText
	}
	if t.HTML == "" {
		t.HTML = DefaultHTML
	}

	subject, err := template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(t.Subject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	text, err := template.New("text").Funcs(sprig.TxtFuncMap()).Parse(t.Text)
	if err != nil {
		return nil, fmt.Errorf("parsing text template: %w", err)
	}
	html, err := htmltemplate.New("html").Funcs(sprig.FuncMap()).Parse(t.HTML)
	if err != nil {
		return nil, fmt.Errorf("parsing html template: %w", err)
	}
	return &Renderer{subject: subject, text: text, html: html}, nil
}

// Render builds the message for a finished run
func (r *Renderer) Render(run probe.TestRun, recipients []string) (Message, error) {
	data := templateData{Run: run, Duration: "n/a"}
	if run.CompletedAt != nil {
		data.Duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}

	var subject, text, html bytes.Buffer
	if err := r.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("rendering subject: %w", err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering text body: %w", err)
	}
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("rendering html body: %w", err)
	}
	return Message{
		Recipients: append([]string(nil), recipients...),
		Subject:    strings.TrimSpace(subject.String()),
		BodyText:   text.String(),
		BodyHTML:   html.String(),
	}, nil
}
