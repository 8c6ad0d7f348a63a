// Package period maps dated entries to the monthly bucket they are
// attributed to: a card invoice month or a personal competence month.
//
// A bucket is always represented as the first day of its month.
package period

import (
	"time"

	"dindin/internal/core"
)

// Resolve returns the month bucket owning occurrence under cutoffDay.
//
//   - cutoffDay <= 0: the occurrence month itself (no shift).
//   - day >= cutoffDay: the month after the occurrence month.
//   - otherwise: the occurrence month.
//
// A cutoffDay of 1 therefore always pushes to the next month.
func Resolve(occurrence core.Date, cutoffDay int) core.Date {
	if cutoffDay <= 0 || occurrence.Day() < cutoffDay {
		return FirstOfMonth(occurrence)
	}
	return nextMonth(occurrence)
}

// ResolveOptional is Resolve for a cutoff that may be absent.
func ResolveOptional(occurrence core.Date, cutoffDay *int) core.Date {
	if cutoffDay == nil {
		return FirstOfMonth(occurrence)
	}
	return Resolve(occurrence, *cutoffDay)
}

// FirstOfMonth normalizes d to day 1 of its month.
func FirstOfMonth(d core.Date) core.Date {
	return core.NewDate(d.Year(), d.Month(), 1)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	// day 0 of the following month is the last day of this one
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves d by n calendar months, keeping the day of month when
// the target month has it and clamping to its last day otherwise.
// 2026-01-31 + 1 month is 2026-02-28.
func AddMonths(d core.Date, n int) core.Date {
	total := d.Year()*12 + (d.Month() - 1) + n
	year, month := floorDiv(total, 12), floorMod(total, 12)+1

	day := d.Day()
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func nextMonth(d core.Date) core.Date {
	year, month := d.Year(), d.Month()+1
	if month > 12 {
		month = 1
		year++
	}
	return core.NewDate(year, month, 1)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
