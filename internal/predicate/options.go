package predicate

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/trevnoctilla/toolprobe/internal/target"
)

// SelectOptions returns the option values and labels of the first select
// matching hints, and whether one was found
func SelectOptions(snap target.Snapshot, hints []string) ([]string, bool, error) {
	doc, err := parse(snap)
	if err != nil {
		return nil, false, err
	}
	sel := findSelect(doc, hints)
	if sel == nil {
		return nil, false, nil
	}
	var out []string
	sel.Find("option").Each(func(_ int, o *goquery.Selection) {
		if v, ok := o.Attr("value"); ok && v != "" {
			out = append(out, strings.ToLower(v))
		}
		if t := strings.TrimSpace(o.Text()); t != "" {
			out = append(out, strings.ToLower(t))
		}
	})
	return out, true, nil
}

// MissingOptions lists the expected values the select does not offer
func MissingOptions(offered, expect []string) []string {
	var missing []string
	for _, want := range expect {
		w := strings.ToLower(want)
		hit := false
		for _, o := range offered {
			if o == w || strings.Contains(o, w) {
				hit = true
				break
			}
		}
		if !hit {
			missing = append(missing, want)
		}
	}
	return missing
}

// SelectOffers holds when the select matching hints offers every expected value
func SelectOffers(hints, expect []string) Predicate {
	return func(snap target.Snapshot) (bool, error) {
		offered, found, err := SelectOptions(snap, hints)
		if err != nil || !found {
			return false, err
		}
		return len(MissingOptions(offered, expect)) == 0, nil
	}
}

func findSelect(doc *goquery.Document, hints []string) *goquery.Selection {
	for _, h := range hints {
		switch {
		case strings.HasPrefix(h, "css:"):
			if s := doc.Find(strings.TrimPrefix(h, "css:")).First(); s.Length() > 0 {
				return s
			}
		case strings.HasPrefix(h, "label:"):
			want := strings.ToLower(strings.TrimPrefix(h, "label:"))
			var match *goquery.Selection
			doc.Find("label").EachWithBreak(func(_ int, l *goquery.Selection) bool {
				if !strings.Contains(strings.ToLower(l.Text()), want) {
					return true
				}
				if id, ok := l.Attr("for"); ok && id != "" {
					if s := doc.Find("select#" + id); s.Length() > 0 {
						match = s.First()
						return false
					}
				}
				if s := l.Find("select"); s.Length() > 0 {
					match = s.First()
					return false
				}
				if s := l.Parent().Find("select"); s.Length() > 0 {
					match = s.First()
					return false
				}
				return true
			})
			if match != nil {
				return match
			}
		default:
			want := strings.ToLower(h)
			var match *goquery.Selection
			doc.Find("select").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				attrs := strings.ToLower(s.AttrOr("id", "") + " " + s.AttrOr("name", "") + " " + s.AttrOr("aria-label", ""))
				if strings.Contains(attrs, want) {
					match = s
					return false
				}
				return true
			})
			if match != nil {
				return match
			}
		}
	}
	return nil
}
