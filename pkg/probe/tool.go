package probe

import (
	"fmt"
	"strings"
	"time"
)

// FormatCombo is one output configuration exercised by a sweep
type FormatCombo struct {
	Format      string `yaml:"format" json:"format" validate:"required"`
	Quality     string `yaml:"quality,omitempty" json:"quality,omitempty"`
	Compression string `yaml:"compression,omitempty" json:"compression,omitempty"`
}

// String renders the combo as used in outcome names, e.g. "mp4 q85 medium"
func (c FormatCombo) String() string {
	parts := []string{c.Format}
	if c.Quality != "" {
		parts = append(parts, "q"+c.Quality)
	}
	if c.Compression != "" {
		parts = append(parts, c.Compression)
	}
	return strings.Join(parts, " ")
}

// FixtureSpec lists where the upload fixture may be found, primary first
type FixtureSpec struct {
	Candidates []string `yaml:"candidates" json:"candidates" validate:"min=1,dive,required"`
	// Accept is a MIME prefix the fixture must match, e.g. "video/"
	Accept string `yaml:"accept,omitempty" json:"accept,omitempty"`
	// Name overrides the file name presented to the target
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// FixtureFile is a fetched fixture, always backed by a local path
type FixtureFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Path     string `json:"path"`
	Source   string `json:"source"`
	Data     []byte `json:"-"`
}

// Hints are the heuristic locators for the target's controls. Plain entries
// match visible text and attributes; "css:" entries are selectors; "label:"
// entries match the text of an associated label.
type Hints struct {
	Consent           []string `yaml:"consent,omitempty" json:"consent,omitempty"`
	FileInput         []string `yaml:"fileInput,omitempty" json:"fileInput,omitempty"`
	FormatSelect      []string `yaml:"formatSelect,omitempty" json:"formatSelect,omitempty"`
	QualitySelect     []string `yaml:"qualitySelect,omitempty" json:"qualitySelect,omitempty"`
	CompressionSelect []string `yaml:"compressionSelect,omitempty" json:"compressionSelect,omitempty"`
	Trigger           []string `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	TriggerExclude    []string `yaml:"triggerExclude,omitempty" json:"triggerExclude,omitempty"`
	Reset             []string `yaml:"reset,omitempty" json:"reset,omitempty"`
	Download          []string `yaml:"download,omitempty" json:"download,omitempty"`
	DownloadExclude   []string `yaml:"downloadExclude,omitempty" json:"downloadExclude,omitempty"`
	Modal             string   `yaml:"modal,omitempty" json:"modal,omitempty"`
	ViewAd            []string `yaml:"viewAd,omitempty" json:"viewAd,omitempty"`
	ViewAdExclude     []string `yaml:"viewAdExclude,omitempty" json:"viewAdExclude,omitempty"`
	Payment           []string `yaml:"payment,omitempty" json:"payment,omitempty"`
	ManualAd          []string `yaml:"manualAd,omitempty" json:"manualAd,omitempty"`
}

// Markers are the text markers that reveal the conversion phase
type Markers struct {
	Upload     []string `yaml:"upload,omitempty" json:"upload,omitempty"`
	Processing []string `yaml:"processing,omitempty" json:"processing,omitempty"`
	Success    []string `yaml:"success,omitempty" json:"success,omitempty"`
	Failure    []string `yaml:"failure,omitempty" json:"failure,omitempty"`
}

// GateSpec configures the monetization gate phase
type GateSpec struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	PostAdRoute string `yaml:"postAdRoute,omitempty" json:"postAdRoute,omitempty"`
	StorageKey  string `yaml:"storageKey,omitempty" json:"storageKey,omitempty"`
}

// ActivitySpec selects which page activity is reported per combo
type ActivitySpec struct {
	// Requests are URL substrings of the converter's own endpoints
	Requests []string `yaml:"requests,omitempty" json:"requests,omitempty"`
	// ConsoleIgnore are substrings of console errors that are known noise
	ConsoleIgnore []string `yaml:"consoleIgnore,omitempty" json:"consoleIgnore,omitempty"`
}

// Timeouts bound every wait of a run
type Timeouts struct {
	Interval        time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Consent         time.Duration `yaml:"consent,omitempty" json:"consent,omitempty"`
	Upload          time.Duration `yaml:"upload,omitempty" json:"upload,omitempty"`
	Conversion      time.Duration `yaml:"conversion,omitempty" json:"conversion,omitempty"`
	Reset           time.Duration `yaml:"reset,omitempty" json:"reset,omitempty"`
	Modal           time.Duration `yaml:"modal,omitempty" json:"modal,omitempty"`
	Redirect        time.Duration `yaml:"redirect,omitempty" json:"redirect,omitempty"`
	ModalDismiss    time.Duration `yaml:"modalDismiss,omitempty" json:"modalDismiss,omitempty"`
	DownloadRestore time.Duration `yaml:"downloadRestore,omitempty" json:"downloadRestore,omitempty"`
	Gate            time.Duration `yaml:"gate,omitempty" json:"gate,omitempty"`
	Settle          time.Duration `yaml:"settle,omitempty" json:"settle,omitempty"`
}

// StaticCheck is a capability check evaluated once the sweep is over
type StaticCheck struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Kind   string   `yaml:"kind" json:"kind" validate:"required,oneof=select-options text-present control-present"`
	Hints  []string `yaml:"hints,omitempty" json:"hints,omitempty"`
	Expect []string `yaml:"expect,omitempty" json:"expect,omitempty"`
}

const (
	CheckSelectOptions  = "select-options"
	CheckTextPresent    = "text-present"
	CheckControlPresent = "control-present"
)

// Tool describes one tool page and how to exercise it
type Tool struct {
	ID           string        `yaml:"id" json:"id" validate:"required"`
	Name         string        `yaml:"name" json:"name"`
	URL          string        `yaml:"url" json:"url" validate:"required,url"`
	Fixture      FixtureSpec   `yaml:"fixture" json:"fixture"`
	Combos       []FormatCombo `yaml:"combos" json:"combos" validate:"min=1,dive"`
	Hints        Hints         `yaml:"hints,omitempty" json:"hints"`
	Markers      Markers       `yaml:"markers,omitempty" json:"markers"`
	Gate         GateSpec      `yaml:"gate,omitempty" json:"gate"`
	Activity     ActivitySpec  `yaml:"activity,omitempty" json:"activity"`
	Timeouts     Timeouts      `yaml:"timeouts,omitempty" json:"timeouts"`
	StaticChecks []StaticCheck `yaml:"staticChecks,omitempty" json:"staticChecks,omitempty" validate:"dive"`
}

// String returns a readable tool label
func (t Tool) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s (%s)", t.Name, t.ID)
	}
	return t.ID
}

// WithDefaults returns a copy of the tool with every unset hint, marker and
// timeout filled from the defaults
func (t Tool) WithDefaults() Tool {
	h, d := &t.Hints, DefaultHints()
	fill(&h.Consent, d.Consent)
	fill(&h.FileInput, d.FileInput)
	fill(&h.FormatSelect, d.FormatSelect)
	fill(&h.QualitySelect, d.QualitySelect)
	fill(&h.CompressionSelect, d.CompressionSelect)
	fill(&h.Trigger, d.Trigger)
	fill(&h.TriggerExclude, d.TriggerExclude)
	fill(&h.Reset, d.Reset)
	fill(&h.Download, d.Download)
	fill(&h.DownloadExclude, d.DownloadExclude)
	fill(&h.ViewAd, d.ViewAd)
	fill(&h.ViewAdExclude, d.ViewAdExclude)
	fill(&h.Payment, d.Payment)
	fill(&h.ManualAd, d.ManualAd)
	if h.Modal == "" {
		h.Modal = d.Modal
	}

	m, dm := &t.Markers, DefaultMarkers()
	fill(&m.Upload, dm.Upload)
	fill(&m.Processing, dm.Processing)
	fill(&m.Success, dm.Success)
	fill(&m.Failure, dm.Failure)

	a, da := &t.Activity, DefaultActivity()
	fill(&a.Requests, da.Requests)
	fill(&a.ConsoleIgnore, da.ConsoleIgnore)

	if t.Gate.PostAdRoute == "" {
		t.Gate.PostAdRoute = DefaultPostAdRoute
	}
	if t.Gate.StorageKey == "" {
		t.Gate.StorageKey = DefaultDownloadURLKey
	}

	to, dt := &t.Timeouts, DefaultTimeouts()
	fillDuration(&to.Interval, dt.Interval)
	fillDuration(&to.Consent, dt.Consent)
	fillDuration(&to.Upload, dt.Upload)
	fillDuration(&to.Conversion, dt.Conversion)
	fillDuration(&to.Reset, dt.Reset)
	fillDuration(&to.Modal, dt.Modal)
	fillDuration(&to.Redirect, dt.Redirect)
	fillDuration(&to.ModalDismiss, dt.ModalDismiss)
	fillDuration(&to.DownloadRestore, dt.DownloadRestore)
	fillDuration(&to.Gate, dt.Gate)
	fillDuration(&to.Settle, dt.Settle)

	combos := make([]FormatCombo, len(t.Combos))
	copy(combos, t.Combos)
	t.Combos = combos
	return t
}

func fill(dst *[]string, def []string) {
	if len(*dst) == 0 {
		*dst = append([]string(nil), def...)
	}
}

func fillDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}
