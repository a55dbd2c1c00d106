package format

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// APIEndpoint represents an API endpoint
type APIEndpoint struct {
	Method      string
	Path        string
	Description string
}

// FormatHTTPMethod returns a colored and bold HTTP method string
func FormatHTTPMethod(method string) string {
	switch method {
	case "GET":
		return color.New(color.Bold, color.FgGreen).Sprint(method)
	case "POST":
		return color.New(color.Bold, color.FgYellow).Sprint(method)
	case "PUT":
		return color.New(color.Bold, color.FgBlue).Sprint(method)
	case "DELETE":
		return color.New(color.Bold, color.FgRed).Sprint(method)
	default:
		return color.New(color.Bold).Sprint(method)
	}
}

// FormatStatus returns a colored, fixed-width outcome status
func FormatStatus(s probe.Status) string {
	label := fmt.Sprintf("%-4s", s)
	switch s {
	case probe.StatusPass:
		return color.New(color.Bold, color.FgGreen).Sprint(label)
	case probe.StatusWarn:
		return color.New(color.Bold, color.FgYellow).Sprint(label)
	case probe.StatusFail:
		return color.New(color.Bold, color.FgRed).Sprint(label)
	case probe.StatusSkip:
		return color.New(color.FgHiBlack).Sprint(label)
	default:
		return color.New(color.FgCyan).Sprint(label)
	}
}

// FormatDriver returns the banner line naming the browser backend
func FormatDriver(driver, endpoint string) string {
	green := color.New(color.FgGreen)
	where := "local browser"
	if endpoint != "" {
		where = endpoint
	}
	return green.Sprint("Running tools on ") +
		color.New(color.Bold, color.FgCyan).Sprint(driver) +
		green.Sprintf(" (%s)", where)
}

// FormatCounts renders a run's tallies, coloring the non-zero verdicts
func FormatCounts(c probe.Counts) string {
	parts := []string{
		paint(c.Pass, color.FgGreen, "passed"),
		paint(c.Warn, color.FgYellow, "warnings"),
		paint(c.Fail, color.FgRed, "failed"),
		fmt.Sprintf("%d skipped", c.Skip),
		fmt.Sprintf("%d info", c.Info),
	}
	return strings.Join(parts, ", ")
}

func paint(n int, attr color.Attribute, noun string) string {
	s := fmt.Sprintf("%d %s", n, noun)
	if n == 0 {
		return s
	}
	return color.New(attr).Sprint(s)
}

// LogAPIEndpoint logs an API endpoint with consistent formatting
func LogAPIEndpoint(logger *logger.Logger, endpoint APIEndpoint) {
	// tabs keep alignment since ANSI codes don't affect tab stops
	logger.Info("  %s\t\t%s\t\t%s",
		FormatHTTPMethod(endpoint.Method),
		endpoint.Path,
		endpoint.Description,
	)
}

// LogAPIEndpoints logs a header and a list of API endpoints
func LogAPIEndpoints(logger *logger.Logger, endpoints []APIEndpoint) {
	logger.Info("API endpoints:")
	for _, endpoint := range endpoints {
		LogAPIEndpoint(logger, endpoint)
	}
}

// LogRun logs every outcome of a finished run followed by its tallies
func LogRun(logger *logger.Logger, run probe.TestRun) {
	logger.Info("%s run %s:", color.New(color.Bold).Sprint(run.ToolID), run.ID)
	for _, o := range run.Outcomes {
		logger.Info("  %s %s: %s", FormatStatus(o.Status), o.Name, o.Message)
	}
	logger.Info("  %s", FormatCounts(run.Counts))
}
