package common

import (
	"fmt"
	"time"
)

// FormatDurationConcise renders whole days, hours, minutes or seconds as
// "14d", "3h", "10m" or "5s", falling back to time.Duration's format
func FormatDurationConcise(d time.Duration) string {
	for _, unit := range []struct {
		size   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	} {
		if d > 0 && d%unit.size == 0 {
			return fmt.Sprintf("%d%s", d/unit.size, unit.suffix)
		}
	}
	return d.String()
}
