package predicate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sizeRe      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(bytes|kb|mb|gb)\b`)
	reductionRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*(smaller|reduction|reduced|saved|compression)`)
)

// Evidence is what a converted result page reveals about the output
type Evidence struct {
	Sizes       []string
	Reduction   string
	Progress    int
	HasProgress bool
}

// Empty reports whether nothing was extracted
func (e Evidence) Empty() bool {
	return len(e.Sizes) == 0 && e.Reduction == "" && !e.HasProgress
}

// String renders the evidence for an outcome message
func (e Evidence) String() string {
	var parts []string
	if len(e.Sizes) > 0 {
		parts = append(parts, "sizes "+strings.Join(e.Sizes, ", "))
	}
	if e.Reduction != "" {
		parts = append(parts, "reduction "+e.Reduction)
	}
	if e.HasProgress {
		parts = append(parts, "progress "+strconv.Itoa(e.Progress)+"%")
	}
	return strings.Join(parts, "; ")
}

// ExtractEvidence permissively pulls sizes, reduction and progress out of text
func ExtractEvidence(text string) Evidence {
	var ev Evidence
	seen := map[string]bool{}
	for _, m := range sizeRe.FindAllStringSubmatch(text, -1) {
		s := m[1] + " " + strings.ToUpper(m[2])
		if strings.EqualFold(m[2], "bytes") {
			s = m[1] + " bytes"
		}
		if !seen[s] {
			seen[s] = true
			ev.Sizes = append(ev.Sizes, s)
		}
	}
	if m := reductionRe.FindStringSubmatch(text); m != nil {
		ev.Reduction = m[1] + "%"
	}
	ev.Progress, ev.HasProgress = Progress(text)
	return ev
}
