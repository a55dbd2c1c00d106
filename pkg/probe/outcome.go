package probe

import (
	"fmt"
	"time"
)

// Status is the verdict attached to one outcome
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
	StatusInfo Status = "INFO"
)

// Outcome names shared by the phases. Per-combo checks append the combo label.
const (
	OutcomeFixtureUnavailable   = "FixtureUnavailable"
	OutcomeFixture              = "Fixture"
	OutcomeTarget               = "Target"
	OutcomeConsent              = "Consent"
	OutcomeFileInput            = "FileInput"
	OutcomeFormatSelect         = "FormatSelect"
	OutcomeQualitySelect        = "QualitySelect"
	OutcomeCompressionSelect    = "CompressionSelect"
	OutcomeConvert              = "Convert"
	OutcomeUpload               = "Upload"
	OutcomeConversion           = "Conversion"
	OutcomeEvidence             = "Evidence"
	OutcomeReset                = "Reset"
	OutcomeSweep                = "Sweep"
	OutcomeStaticCheck          = "StaticCheck"
	OutcomeDownloadAffordance   = "DownloadAffordance"
	OutcomeModalDetected        = "ModalDetected"
	OutcomeModalNotDetected     = "ModalNotDetected"
	OutcomePaymentOption        = "PaymentOption"
	OutcomeManualAdFallback     = "ManualAdFallback"
	OutcomeViewAdControl        = "ViewAdControl"
	OutcomeNavigationSeam       = "NavigationSeam"
	OutcomeAdWindowOpen         = "AdWindowOpen"
	OutcomeUnexpectedNavigation = "UnexpectedNavigation"
	OutcomeDownloadURLStored    = "DownloadURLStored"
	OutcomeUserReturned         = "UserReturned"
	OutcomeModalDismissed       = "ModalDismissed"
	OutcomeDownloadRestored     = "DownloadRestored"
	OutcomeGate                 = "Gate"
	OutcomeTargetDetached       = "TargetDetached"
	OutcomeOrchestrator         = "Orchestrator"
	OutcomeCancelled            = "Cancelled"
	OutcomeConsole              = "Console"
	OutcomeNetwork              = "Network"
)

// TestOutcome is one named, timestamped, status-tagged result. The sink sets
// Timestamp on append; after that the value is never modified.
type TestOutcome struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Artifact  string    `json:"artifact,omitempty"`
}

// NewOutcome builds an outcome with a formatted message
func NewOutcome(name string, status Status, format string, args ...interface{}) TestOutcome {
	return TestOutcome{
		Name:    name,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	}
}

// Pass, Warn, Fail, Skip and Info are shorthands for NewOutcome
func Pass(name, format string, args ...interface{}) TestOutcome {
	return NewOutcome(name, StatusPass, format, args...)
}

func Warn(name, format string, args ...interface{}) TestOutcome {
	return NewOutcome(name, StatusWarn, format, args...)
}

func Fail(name, format string, args ...interface{}) TestOutcome {
	return NewOutcome(name, StatusFail, format, args...)
}

func Skip(name, format string, args ...interface{}) TestOutcome {
	return NewOutcome(name, StatusSkip, format, args...)
}

func Info(name, format string, args ...interface{}) TestOutcome {
	return NewOutcome(name, StatusInfo, format, args...)
}

// Counts aggregates outcomes per status
type Counts struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
	Skip int `json:"skip"`
	Info int `json:"info"`
}

// Total returns the number of counted outcomes
func (c Counts) Total() int {
	return c.Pass + c.Warn + c.Fail + c.Skip + c.Info
}

// CountOutcomes tallies outcomes by status
func CountOutcomes(outcomes []TestOutcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case StatusPass:
			c.Pass++
		case StatusWarn:
			c.Warn++
		case StatusFail:
			c.Fail++
		case StatusSkip:
			c.Skip++
		case StatusInfo:
			c.Info++
		}
	}
	return c
}
