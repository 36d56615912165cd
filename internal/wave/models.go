package wave

import (
	"fmt"
	"time"
)

const (
	dayLayout     = "2006-01-02"
	compactLayout = "20060102"
	paramLayout   = "2006-01-02T15:04:05Z"
)

// Device is the stable Spotter identifier assigned by the remote system.
type Device string

// Day is a calendar date, always stored as midnight UTC.
type Day struct {
	t time.Time
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return Day{t: t}, nil
}

// ParseCompactDay parses a YYYYMMDD date as used in artifact names.
func ParseCompactDay(s string) (Day, error) {
	t, err := time.ParseInLocation(compactLayout, s, time.UTC)
	if err != nil {
		return Day{}, err
	}
	return Day{t: t}, nil
}

// DayOf truncates t to its UTC calendar date.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day{t: d.t.AddDate(0, 0, 1)}
}

// Prev returns the preceding calendar day.
func (d Day) Prev() Day {
	return Day{t: d.t.AddDate(0, 0, -1)}
}

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool {
	return d.t.After(o.t)
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	return d.t.Before(o.t)
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return d.t
}

func (d Day) IsZero() bool {
	return d.t.IsZero()
}

func (d Day) String() string {
	return d.t.Format(dayLayout)
}

// Compact formats the day as YYYYMMDD, the form used in artifact names.
func (d Day) Compact() string {
	return d.t.Format(compactLayout)
}

// Window returns the 24-hour request window [day 00:00Z, day+1 00:00Z).
func (d Day) Window() Window {
	return Window{Start: d.t, End: d.t.AddDate(0, 0, 1)}
}

// Window bounds one wave-data request.
type Window struct {
	Start time.Time
	End   time.Time
}

// StartParam formats the lower bound the way the API expects it.
func (w Window) StartParam() string {
	return w.Start.UTC().Format(paramLayout)
}

// EndParam formats the upper bound the way the API expects it.
func (w Window) EndParam() string {
	return w.End.UTC().Format(paramLayout)
}

// DateRange is an inclusive pair of calendar days.
// A range whose Start is after End is empty.
type DateRange struct {
	Start Day
	End   Day
}

// Empty reports whether the range contains no days.
func (r DateRange) Empty() bool {
	return r.Start.After(r.End)
}

// Days lists every day of the range in ascending order.
func (r DateRange) Days() []Day {
	var days []Day
	for d := r.Start; !d.After(r.End); d = d.Next() {
		days = append(days, d)
	}
	return days
}

// Result summarizes one pull. It is only ever logged.
type Result struct {
	Days      int
	Attempted int
	Written   int
	Failed    int
}
