package domain

import (
	"fmt"
	"time"
)

// Day identifies a calendar date independent of clock time and zone.
type Day struct {
	Year  int
	Month time.Month
	Date  int
}

// DayOf truncates a timestamp to its calendar date in UTC.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{Year: y, Month: m, Date: d}
}

// Time returns the day as midnight UTC.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Date, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.Time().Before(other.Time())
}

// Sub returns the number of whole days from other to d.
func (d Day) Sub(other Day) int {
	return int(d.Time().Sub(other.Time()).Hours() / 24)
}

// IsZero reports whether d is the zero value.
func (d Day) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Date == 0
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Date)
}

// ParseDay parses a YYYY-MM-DD date string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t), nil
}
