// Package periodlock decides whether a transaction date may be written,
// given a tenant's configured accounting-period locks. Evaluation is pure;
// loading locks and rejecting the write are the caller's concern.
package periodlock

import (
	"time"
)

// Lock is one closed accounting period. The range is inclusive at both ends.
type Lock struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Reason      string    `json:"lock_reason"`
}

// Result is the outcome of validating a transaction date.
type Result struct {
	IsValid      bool  `json:"is_valid"`
	IsLocked     bool  `json:"is_locked"`
	IsFutureDate bool  `json:"is_future_date"`
	Lock         *Lock `json:"lock_details,omitempty"`
}

// Evaluate validates date against the supplied locks. A date is future when
// it is strictly after the last instant of today in now's location; it is
// locked when it falls inside any lock's inclusive range. When several locks
// match, the earliest-starting one is reported.
func Evaluate(now, date time.Time, locks []Lock) Result {
	res := Result{}

	endOfToday := endOfDay(now)
	res.IsFutureDate = date.After(endOfToday)

	var matched *Lock
	for i := range locks {
		l := &locks[i]
		if within(date, l.PeriodStart, l.PeriodEnd) {
			if matched == nil || l.PeriodStart.Before(matched.PeriodStart) {
				matched = l
			}
		}
	}
	if matched != nil {
		res.IsLocked = true
		res.Lock = matched
	}

	res.IsValid = !res.IsLocked && !res.IsFutureDate
	return res
}

// within reports start <= date <= end, comparing calendar days so a lock
// ending at midnight still covers the whole end date.
func within(date, start, end time.Time) bool {
	d := truncateDay(date)
	return !d.Before(truncateDay(start)) && !d.After(truncateDay(end))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
