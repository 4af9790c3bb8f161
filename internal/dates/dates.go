// Package dates resolves the reservation target date. The portal opens
// bookings for the next day at midnight Beijing time, so "tomorrow in
// Asia/Shanghai" is the only date this tool ever books.
package dates

import (
	"fmt"
	"time"
)

var beijing = mustLoadBeijing()

func mustLoadBeijing() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		// UTC+8 has no DST; a fixed zone is an exact fallback when the
		// tz database is unavailable.
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Target is the resolved reservation date.
type Target struct {
	Year  int
	Month int
	Day   int
}

// Tomorrow returns the day after now, evaluated in Beijing time.
func Tomorrow(now time.Time) Target {
	t := now.In(beijing).AddDate(0, 0, 1)
	return Target{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// APIDate formats the target as the portal API expects (YYYY-MM-DD).
func (t Target) APIDate() string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year, t.Month, t.Day)
}

// String renders the date for logs and notifications.
func (t Target) String() string { return t.APIDate() }

// CalendarDayXPath locates the target day cell in the portal's Vant
// calendar. The calendar renders multiple months; the month is matched
// either by its title ("2025年11月") or, for the first partially
// rendered month, by the watermark digit behind the grid. The day cell
// must be enabled and carry the bookable marker ("可约").
func (t Target) CalendarDayXPath() string {
	yearMonth := fmt.Sprintf("%d年%d月", t.Year, t.Month)
	monthMark := fmt.Sprintf("%d", t.Month)

	dayCell := fmt.Sprintf(
		`/div[@role='gridcell' and contains(@class, 'van-calendar__day')`+
			` and not(contains(@class, 'van-calendar__day--disabled'))`+
			` and normalize-space(text()[1]) = '%d'`+
			` and ./div[contains(@class, 'van-calendar__bottom-info') and contains(text(), '可约')]]`,
		t.Day)

	return fmt.Sprintf(
		`//div[@class='van-calendar__month']`+
			`[(./div[@class='van-calendar__month-title' and normalize-space(.)='%s'])`+
			` or (./div[@class='van-calendar__days']/div[@class='van-calendar__month-mark' and normalize-space(.)='%s']`+
			` and not(./div[@class='van-calendar__month-title']))]`+
			`/div[@class='van-calendar__days']%s`,
		yearMonth, monthMark, dayCell)
}
