package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTomorrowUsesBeijingTime(t *testing.T) {
	// 23:30 UTC on Jan 31 is already Feb 1 in Beijing, so tomorrow is
	// Feb 2, not Feb 1.
	now := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)
	got := Tomorrow(now)
	assert.Equal(t, Target{Year: 2026, Month: 2, Day: 2}, got)
}

func TestTomorrowCrossesYear(t *testing.T) {
	now := time.Date(2025, 12, 31, 3, 0, 0, 0, beijing)
	assert.Equal(t, Target{Year: 2026, Month: 1, Day: 1}, Tomorrow(now))
}

func TestAPIDateZeroPads(t *testing.T) {
	assert.Equal(t, "2026-02-02", Target{Year: 2026, Month: 2, Day: 2}.APIDate())
}

func TestCalendarDayXPath(t *testing.T) {
	xp := Target{Year: 2026, Month: 9, Day: 2}.CalendarDayXPath()
	assert.Contains(t, xp, "2026年9月")
	assert.Contains(t, xp, "= '2'")
	assert.Contains(t, xp, "可约")
	assert.Contains(t, xp, "van-calendar__day--disabled")
}
