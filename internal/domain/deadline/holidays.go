package deadline

import (
	"time"

	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Date is a civil calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// DaysUntil returns the number of calendar days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, errors.Wrap(err, errors.CodeInvalidParam, "invalid date").WithDetail(s)
	}
	return DateOf(t), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Holiday calendar
// ─────────────────────────────────────────────────────────────────────────────

// fixedHolidays recur every year on the same month/day.
var fixedHolidays = []struct {
	Month time.Month
	Day   int
}{
	{time.January, 1},  // Yılbaşı
	{time.April, 23},   // Ulusal Egemenlik ve Çocuk Bayramı
	{time.May, 1},      // Emek ve Dayanışma Günü
	{time.May, 19},     // Atatürk'ü Anma, Gençlik ve Spor Bayramı
	{time.July, 15},    // Demokrasi ve Milli Birlik Günü
	{time.August, 30},  // Zafer Bayramı
	{time.October, 29}, // Cumhuriyet Bayramı
}

// religiousHolidays lists the movable Ramazan and Kurban Bayramı ranges
// (inclusive) for the years the calendar covers.
var religiousHolidays = [][2]Date{
	{{2024, time.April, 10}, {2024, time.April, 12}},
	{{2024, time.June, 16}, {2024, time.June, 19}},
	{{2025, time.March, 30}, {2025, time.April, 1}},
	{{2025, time.June, 6}, {2025, time.June, 9}},
	{{2026, time.March, 20}, {2026, time.March, 22}},
	{{2026, time.May, 27}, {2026, time.May, 30}},
	{{2027, time.March, 9}, {2027, time.March, 11}},
	{{2027, time.May, 16}, {2027, time.May, 19}},
}

// HolidayCalendar answers whether a date is a public holiday.  It is
// immutable after construction and safe for concurrent use.
type HolidayCalendar struct {
	dates map[Date]struct{}
	fixed map[[2]int]struct{}
}

// NewHolidayCalendar builds the default Turkish calendar plus any extra dates.
func NewHolidayCalendar(extra ...Date) *HolidayCalendar {
	c := &HolidayCalendar{
		dates: make(map[Date]struct{}),
		fixed: make(map[[2]int]struct{}, len(fixedHolidays)),
	}
	for _, f := range fixedHolidays {
		c.fixed[[2]int{int(f.Month), f.Day}] = struct{}{}
	}
	for _, r := range religiousHolidays {
		for d := r[0]; !r[1].Before(d); d = d.AddDays(1) {
			c.dates[d] = struct{}{}
		}
	}
	for _, d := range extra {
		c.dates[d] = struct{}{}
	}
	return c
}

// IsHoliday reports whether d is a fixed or movable holiday.
func (c *HolidayCalendar) IsHoliday(d Date) bool {
	if _, ok := c.fixed[[2]int{int(d.Month), d.Day}]; ok {
		return true
	}
	_, ok := c.dates[d]
	return ok
}

// IsBusinessDay reports whether d is neither a weekend day nor a holiday.
func (c *HolidayCalendar) IsBusinessDay(d Date) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}
