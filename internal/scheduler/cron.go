package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// fallbackInterval is assumed for any cron expression Interval doesn't
// recognize — conservative enough that a misclassified expression is
// merely checked less eagerly for overdue status, never more.
const fallbackInterval = 24 * time.Hour

// Validate rejects anything that isn't 5 or 6 space-separated fields, per
// spec.md's cron validation rule.
func Validate(expr string) bool {
	fields := strings.Fields(expr)
	return len(fields) == 5 || len(fields) == 6
}

// Interval estimates the recurrence period of a cron expression, for the
// handful of shapes spec.md names explicitly:
//
//	*/N * * * *   every N minutes
//	0 * * * *     hourly
//	0 */N * * *   every N hours
//	M H * * *     daily at a fixed time
//	M H * * D     weekly
//
// Anything else conservatively falls back to 24h.
func Interval(expr string) time.Duration {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fallbackInterval
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if dom == "*" && month == "*" {
		if n, ok := stepValue(minute); ok && hour == "*" && dow == "*" {
			return time.Duration(n) * time.Minute
		}
		if minute == "0" && dow == "*" {
			if hour == "*" {
				return time.Hour
			}
			if n, ok := stepValue(hour); ok {
				return time.Duration(n) * time.Hour
			}
		}
		if isFixed(minute) && isFixed(hour) {
			if dow == "*" {
				return 24 * time.Hour
			}
			return 7 * 24 * time.Hour
		}
	}
	return fallbackInterval
}

// stepValue parses a "*/N" step expression, returning N.
func stepValue(field string) (int, bool) {
	if !strings.HasPrefix(field, "*/") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(field, "*/"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func isFixed(field string) bool {
	_, err := strconv.Atoi(field)
	return err == nil
}

// IsOverdue reports whether a recurring job is due to run: it has never
// run, or the time since lastRun is at least its cron's estimated interval.
func IsOverdue(lastRun *time.Time, expr string, now time.Time) bool {
	if lastRun == nil {
		return true
	}
	return now.Sub(*lastRun) >= Interval(expr)
}
