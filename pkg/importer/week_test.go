package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekOfMonday(t *testing.T) {
	w := WeekOf(date(2025, 1, 6))
	assert.Equal(t, "2025-W02", w.ISO)
	assert.Equal(t, date(2025, 1, 6), w.Start)
	assert.Equal(t, date(2025, 1, 12), w.End)
}

func TestWeekOfAnchorsMidweekToMonday(t *testing.T) {
	for d := 6; d <= 12; d++ {
		w := WeekOf(date(2025, 1, d))
		assert.Equal(t, "2025-W02", w.ISO, "day %d", d)
		assert.Equal(t, date(2025, 1, 6), w.Start, "day %d", d)
	}
}

func TestWeekOfSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	w := WeekOf(date(2025, 1, 5))
	assert.Equal(t, "2025-W01", w.ISO)
	assert.Equal(t, date(2024, 12, 30), w.Start)
	assert.Equal(t, date(2025, 1, 5), w.End)
}

func TestWeekOfYearBoundary(t *testing.T) {
	// 2024-12-31 is a Tuesday inside ISO week 2025-W01.
	w := WeekOf(date(2024, 12, 31))
	assert.Equal(t, "2025-W01", w.ISO)
	assert.Equal(t, date(2024, 12, 30), w.Start)
	assert.Equal(t, date(2025, 1, 5), w.End)
}
