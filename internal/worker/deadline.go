package worker

import "time"

// Deadline returns when a run started at now should stop: after d, or
// earlier at the first wall-clock minute stopAtMinute (0-59) that is at
// least one minute away. A negative stopAtMinute disables that limit.
func Deadline(now time.Time, d time.Duration, stopAtMinute int) time.Time {
	until := now.Add(d)
	if stopAtMinute < 0 || stopAtMinute > 59 {
		return until
	}
	t := now.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < 60; i++ {
		if t.Minute() == stopAtMinute {
			break
		}
		t = t.Add(time.Minute)
	}
	if t.Before(until) {
		return t
	}
	return until
}
