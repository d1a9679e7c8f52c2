package limits

import "time"

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns the local calendar day containing now, from local
// midnight (inclusive) to the next local midnight (exclusive).
func DayWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}
