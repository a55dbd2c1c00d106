package predicate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

var progressRe = regexp.MustCompile(`(\d{1,3})\s*%`)

// Progress extracts the largest percentage shown in text
func Progress(text string) (int, bool) {
	best, found := 0, false
	for _, m := range progressRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n > 100 {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

// Set holds the phase predicates for one tool's markers and hints
type Set struct {
	markers probe.Markers
	hints   probe.Hints
}

// NewSet builds predicates from a tool; unset markers and hints use the defaults
func NewSet(tool probe.Tool) Set {
	t := tool.WithDefaults()
	return Set{markers: t.Markers, hints: t.Hints}
}

// UploadPhaseDone holds once no upload marker is visible and the target has
// moved on: progress off zero, a processing marker, or a terminal marker
func (s Set) UploadPhaseDone() Predicate {
	return func(snap target.Snapshot) (bool, error) {
		if containsAny(snap.Text, s.markers.Upload) {
			return false, nil
		}
		if p, ok := Progress(snap.Text); ok && p > 0 {
			return true, nil
		}
		if containsAny(snap.Text, s.markers.Processing) {
			return true, nil
		}
		if ok, _ := s.ConversionFailed()(snap); ok {
			return true, nil
		}
		return s.ConversionComplete()(snap)
	}
}

// DownloadAvailable holds when an enabled download control is rendered
func (s Set) DownloadAvailable() Predicate {
	return func(snap target.Snapshot) (bool, error) {
		doc, err := parse(snap)
		if err != nil {
			return false, err
		}
		found := false
		doc.Find("button, a, [role=\"button\"]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if disabled(sel) {
				return true
			}
			text := strings.ToLower(sel.Text() + " " + sel.AttrOr("aria-label", ""))
			if containsAny(text, s.hints.Download) && !containsAny(text, s.hints.DownloadExclude) {
				found = true
				return false
			}
			return true
		})
		return found, nil
	}
}

// ConversionComplete holds on a download affordance, or a success marker with progress at 100
func (s Set) ConversionComplete() Predicate {
	success := func(snap target.Snapshot) (bool, error) {
		if !containsAny(snap.Text, s.markers.Success) {
			return false, nil
		}
		p, ok := Progress(snap.Text)
		return ok && p == 100, nil
	}
	return Any(s.DownloadAvailable(), success)
}

// ConversionFailed holds when an error marker is visible
func (s Set) ConversionFailed() Predicate {
	return TextContains(s.markers.Failure...)
}

// ModalPresent holds when the gating modal is rendered
func (s Set) ModalPresent() Predicate {
	return func(snap target.Snapshot) (bool, error) {
		doc, err := parse(snap)
		if err != nil {
			return false, err
		}
		return doc.Find(s.hints.Modal).Length() > 0, nil
	}
}

// ModalAbsent holds once the gating modal is gone
func (s Set) ModalAbsent() Predicate {
	return Not(s.ModalPresent())
}

// ConsentPresent holds when a consent banner control is visible
func (s Set) ConsentPresent() Predicate {
	return func(snap target.Snapshot) (bool, error) {
		doc, err := parse(snap)
		if err != nil {
			return false, err
		}
		for _, h := range s.hints.Consent {
			if css, ok := strings.CutPrefix(h, "css:"); ok {
				if doc.Find(css).Length() > 0 {
					return true, nil
				}
				continue
			}
			found := false
			doc.Find("button, [role=\"button\"], a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				found = containsAny(sel.Text(), []string{h})
				return !found
			})
			if found {
				return true, nil
			}
		}
		return false, nil
	}
}

// ModalMentions holds when the modal's text contains any of the phrases
func (s Set) ModalMentions(phrases ...string) Predicate {
	return func(snap target.Snapshot) (bool, error) {
		doc, err := parse(snap)
		if err != nil {
			return false, err
		}
		return containsAny(doc.Find(s.hints.Modal).Text(), phrases), nil
	}
}

func parse(snap target.Snapshot) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
}

func disabled(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	return sel.AttrOr("aria-disabled", "") == "true"
}

// FileInputPresent holds when a file input is rendered
func (s Set) FileInputPresent() Predicate {
	return func(snap target.Snapshot) (bool, error) {
		doc, err := parse(snap)
		if err != nil {
			return false, err
		}
		return doc.Find(`input[type="file"]`).Length() > 0, nil
	}
}
