package importer

import (
	"fmt"
	"time"
)

// Week is an ISO-8601 week with its Monday start and Sunday end.
type Week struct {
	ISO   string
	Start time.Time
	End   time.Time
}

// WeekOf normalizes any date onto its ISO week. The start date is the
// Monday of that week regardless of which weekday t falls on, and the end
// date is six days later.
func WeekOf(t time.Time) Week {
	year, week := t.ISOWeek()
	// time.Weekday puts Sunday at 0; ISO weeks start on Monday.
	offset := int(t.Weekday()) - 1
	if offset < 0 {
		offset = 6
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).
		AddDate(0, 0, -offset)
	return Week{
		ISO:   fmt.Sprintf("%04d-W%02d", year, week),
		Start: start,
		End:   start.AddDate(0, 0, 6),
	}
}
