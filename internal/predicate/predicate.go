package predicate

import (
	"fmt"
	"strings"

	"github.com/trevnoctilla/toolprobe/internal/target"
)

// Predicate decides whether a snapshot shows a phase as reached. An error
// means "not yet" just like false.
type Predicate func(target.Snapshot) (bool, error)

// Eval runs p, converting a panic into an error
func Eval(p Predicate, snap target.Snapshot) (ok bool, err error) {
	if p == nil {
		return false, fmt.Errorf("nil predicate")
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return p(snap)
}

// Any holds when at least one of ps holds
func Any(ps ...Predicate) Predicate {
	return func(s target.Snapshot) (bool, error) {
		var firstErr error
		for _, p := range ps {
			ok, err := Eval(p, s)
			if ok {
				return true, nil
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return false, firstErr
	}
}

// All holds when every one of ps holds
func All(ps ...Predicate) Predicate {
	return func(s target.Snapshot) (bool, error) {
		for _, p := range ps {
			ok, err := Eval(p, s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Not inverts p. An error still counts as not satisfied.
func Not(p Predicate) Predicate {
	return func(s target.Snapshot) (bool, error) {
		ok, err := Eval(p, s)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// TextContains holds when the visible text contains any marker, case-insensitively
func TextContains(markers ...string) Predicate {
	return func(s target.Snapshot) (bool, error) {
		return containsAny(s.Text, markers), nil
	}
}

// AtRoute holds when the snapshot URL path ends with route
func AtRoute(route string) Predicate {
	return func(s target.Snapshot) (bool, error) {
		return routeMatches(s.URL, route), nil
	}
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
