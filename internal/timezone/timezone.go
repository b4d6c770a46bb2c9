// Package timezone converts between UTC storage hours and the fixed-offset
// reporting timezones offered to dashboard users.
package timezone

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// ErrUnknownZone is returned when a timezone name cannot be resolved.
var ErrUnknownZone = errors.New("unknown timezone")

const dateLayout = "2006-01-02"

// Zone is a reporting timezone offered in the hourly view.
type Zone struct {
	Name   string `json:"value"`
	Label  string `json:"label"`
	Offset int    `json:"offset"`
}

// Known lists the supported reporting zones in display order.
var Known = []Zone{
	{Name: "UTC", Label: "UTC+0", Offset: 0},
	{Name: "Asia/Shanghai", Label: "UTC+8 (Beijing)", Offset: 8},
	{Name: "EST", Label: "UTC-5 (EST)", Offset: -5},
	{Name: "PST", Label: "UTC-8 (PST)", Offset: -8},
}

// Offset resolves a zone name to whole hours east of UTC. Names outside
// Known are looked up in the IANA database at instant at.
func Offset(name string, at time.Time) (int, error) {
	for _, z := range Known {
		if z.Name == name {
			return z.Offset, nil
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	_, secs := at.In(loc).Zone()
	return secs / 3600, nil
}

func mod24(h int) int {
	h %= 24
	if h < 0 {
		h += 24
	}
	return h
}

// ToUTCHour maps a local hour of day to the UTC hour of day.
func ToUTCHour(localHour, offset int) int {
	return mod24(localHour - offset)
}

// ToLocalHour maps a UTC hour of day to the local hour of day.
func ToLocalHour(utcHour, offset int) int {
	return mod24(utcHour + offset)
}

// Bucket returns the UTC instant at which the (date, hour) bucket starts.
func Bucket(date time.Time, hour int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

// ToLocal converts a UTC (date, hour) bucket into the local date and hour,
// carrying day boundaries.
func ToLocal(date time.Time, utcHour, offset int) (time.Time, int) {
	ts := Bucket(date, utcHour).Add(time.Duration(offset) * time.Hour)
	return Bucket(ts, 0), ts.Hour()
}

// ToUTC converts a local (date, hour) bucket into the UTC date and hour.
func ToUTC(date time.Time, localHour, offset int) (time.Time, int) {
	ts := Bucket(date, localHour).Add(-time.Duration(offset) * time.Hour)
	return Bucket(ts, 0), ts.Hour()
}

// Window is a half-open UTC interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the UTC window covering the local calendar days
// startDate through endDate inclusive for a zone at offset. When the range
// reaches past now, End is truncated to now.
func NewWindow(startDate, endDate string, offset int, now time.Time) (Window, error) {
	start, err := time.ParseInLocation(dateLayout, startDate, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("start date: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, endDate, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("end date: %w", err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}
	shift := time.Duration(offset) * time.Hour
	w := Window{
		Start: start.Add(-shift),
		End:   end.AddDate(0, 0, 1).Add(-shift),
	}
	now = now.UTC()
	if now.Before(w.End) && now.After(w.Start) {
		w.End = now
	}
	return w, nil
}

// Contains reports whether the UTC (date, hour) bucket starts inside w.
func (w Window) Contains(date time.Time, hour int) bool {
	ts := Bucket(date, hour)
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Dates returns the first and last UTC calendar dates touched by w. They
// bound a coarse reportDate filter that lets the warehouse prune partitions.
func (w Window) Dates() (time.Time, time.Time) {
	last := w.End.Add(-time.Nanosecond)
	if last.Before(w.Start) {
		last = w.Start
	}
	return Bucket(w.Start, 0), Bucket(last, 0)
}

// Shift returns w moved by offset hours, used to express a UTC window in an
// upstream source's native timezone.
func (w Window) Shift(offset int) Window {
	d := time.Duration(offset) * time.Hour
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

// Today returns the window from UTC midnight of now's day to the end of the
// current hour. When hours > 0 the window covers only the last hours hours.
func Today(now time.Time, hours int) Window {
	now = now.UTC()
	end := now.Truncate(time.Hour).Add(time.Hour)
	if hours > 0 {
		return Window{Start: end.Add(-time.Duration(hours) * time.Hour), End: end}
	}
	return Window{Start: Bucket(now, 0), End: end}
}
