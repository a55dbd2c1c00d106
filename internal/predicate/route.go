package predicate

import (
	"net/url"
	"strings"
)

func routeMatches(raw, route string) bool {
	if route == "" || raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.Contains(raw, route)
	}
	path := strings.TrimRight(u.Path, "/")
	want := strings.TrimRight(route, "/")
	return path == want || strings.HasSuffix(path, want)
}
