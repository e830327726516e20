package calendar

import (
	"time"

	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

// GridSize is six weeks of seven days.
const GridSize = 42

type Cell struct {
	Date    schedule.Date `json:"date"`
	Day     int           `json:"day"`
	InMonth bool          `json:"inMonth"`
	IsToday bool          `json:"isToday"`
}

// BuildMonthGrid lays out a Sunday-first month view, padded with the trailing days of the
// previous month and the leading days of the next one.
func BuildMonthGrid(year int, month time.Month, today schedule.Date) []Cell {
	first := schedule.NewDate(year, month, 1)
	start := first.AddDays(-int(first.Weekday()))

	cells := make([]Cell, GridSize)
	for i := range cells {
		d := start.AddDays(i)
		cells[i] = Cell{
			Date:    d,
			Day:     d.Day,
			InMonth: d.Year == first.Year && d.Month == first.Month,
			IsToday: d == today,
		}
	}
	return cells
}

// GridRange returns the first and last dates shown by BuildMonthGrid.
func GridRange(year int, month time.Month) (schedule.Date, schedule.Date) {
	first := schedule.NewDate(year, month, 1)
	start := first.AddDays(-int(first.Weekday()))
	return start, start.AddDays(GridSize - 1)
}

// MonthRange returns the first and last day of the month.
func MonthRange(year int, month time.Month) (schedule.Date, schedule.Date) {
	first := schedule.NewDate(year, month, 1)
	return first, schedule.NewDate(year, month+1, 1).AddDays(-1)
}

// Dated is anything that occurs on a single calendar day.
type Dated interface {
	OccursOn() schedule.Date
}

// BucketByDay groups items of the given month by day of month. Items from any other
// month or year are left out.
func BucketByDay[T Dated](items []T, year int, month time.Month) map[int][]T {
	buckets := make(map[int][]T)
	for _, item := range items {
		d := item.OccursOn()
		if d.Year != year || d.Month != month {
			continue
		}
		buckets[d.Day] = append(buckets[d.Day], item)
	}
	return buckets
}

// BucketByDate groups items by their full date, for views spanning several months.
func BucketByDate[T Dated](items []T) map[schedule.Date][]T {
	buckets := make(map[schedule.Date][]T)
	for _, item := range items {
		d := item.OccursOn()
		buckets[d] = append(buckets[d], item)
	}
	return buckets
}
