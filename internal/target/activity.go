package target

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// activityLimit caps how many entries of each kind a handle buffers between drains
const activityLimit = 500

// ConsoleEntry is one console message that reported an error
type ConsoleEntry struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// RequestEntry is one request the page issued
type RequestEntry struct {
	Method string    `json:"method"`
	URL    string    `json:"url"`
	At     time.Time `json:"at"`
}

// Activity is what a page logged and requested between two drains
type Activity struct {
	Console  []ConsoleEntry
	Requests []RequestEntry
	// Dropped counts entries discarded because the buffer was full
	Dropped int
}

// Errors returns the console entries that contain none of the ignore substrings
func (a Activity) Errors(ignore []string) []ConsoleEntry {
	var out []ConsoleEntry
	for _, e := range a.Console {
		if !containsAny(e.Text, ignore) {
			out = append(out, e)
		}
	}
	return out
}

// Matching returns the requests whose URL contains one of the substrings
func (a Activity) Matching(substrings []string) []RequestEntry {
	var out []RequestEntry
	for _, r := range a.Requests {
		if containsAny(r.URL, substrings) {
			out = append(out, r)
		}
	}
	return out
}

// DescribeRequests groups requests by method and path in first-seen order,
// e.g. "POST /convert-video, GET /video-progress x3"
func DescribeRequests(reqs []RequestEntry) string {
	var order []string
	counts := make(map[string]int)
	for _, r := range reqs {
		path := r.URL
		if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
			path = u.Path
		}
		key := r.Method + " " + path
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	parts := make([]string, len(order))
	for i, key := range order {
		parts[i] = key
		if n := counts[key]; n > 1 {
			parts[i] = fmt.Sprintf("%s x%d", key, n)
		}
	}
	return strings.Join(parts, ", ")
}

// ActivityLog buffers console errors and requests for one handle. Drivers feed
// it from their event listeners; the zero value is ready to use.
type ActivityLog struct {
	mu  sync.Mutex
	buf Activity
}

// AddConsole keeps messages logged at error level or mentioning an error
func (l *ActivityLog) AddConsole(level, text string) {
	if level != "error" && !strings.Contains(text, "Error") && !strings.Contains(text, "ERROR") {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf.Console) >= activityLimit {
		l.buf.Dropped++
		return
	}
	l.buf.Console = append(l.buf.Console, ConsoleEntry{Level: level, Text: text, At: time.Now()})
}

// AddRequest records an outgoing request
func (l *ActivityLog) AddRequest(method, rawURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf.Requests) >= activityLimit {
		l.buf.Dropped++
		return
	}
	l.buf.Requests = append(l.buf.Requests, RequestEntry{Method: method, URL: rawURL, At: time.Now()})
}

// Drain returns everything buffered so far and empties the log
func (l *ActivityLog) Drain() Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.buf
	l.buf = Activity{}
	return a
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
