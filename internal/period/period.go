// Package period resolves named reporting windows relative to a reference date.
//
// All dates are calendar dates represented as midnight UTC. Boundaries are
// inclusive on both ends. current_year is open ended, meaning only its lower
// bound is applied when testing a date for inclusion; current_quarter and
// current_month stop at the end of their calendar quarter and month.
package period

import (
	"fmt"
	"strings"
	"time"

	"flakereport/pkg/errors"
)

// Name identifies a period in a report's period set
type Name string

const (
	PriorYear       Name = "prior_year"
	PriorYearToDate Name = "prior_year_to_date"
	CurrentYear     Name = "current_year"
	CurrentQuarter  Name = "current_quarter"
	CurrentMonth    Name = "current_month"
	LastFullMonth   Name = "last_full_month"
	// LastFullMonthWeeks expands into week_1..week_N of the last full month.
	LastFullMonthWeeks Name = "last_full_month_weeks"
)

var known = map[Name]bool{
	PriorYear:          true,
	PriorYearToDate:    true,
	CurrentYear:        true,
	CurrentQuarter:     true,
	CurrentMonth:       true,
	LastFullMonth:      true,
	LastFullMonthWeeks: true,
}

const dateLayout = "2006-01-02"

// Boundary is a named, inclusive date range
type Boundary struct {
	Name      string
	Start     time.Time
	End       time.Time
	OpenEnded bool
}

// Contains reports whether the calendar date of t falls in the boundary.
func (b Boundary) Contains(t time.Time) bool {
	d := Truncate(t)
	if d.Before(b.Start) {
		return false
	}
	return b.OpenEnded || !d.After(b.End)
}

// Days returns the number of calendar days covered, both ends included.
func (b Boundary) Days() int {
	return int(b.End.Sub(b.Start).Hours()/24) + 1
}

func (b Boundary) String() string {
	return fmt.Sprintf("%s [%s..%s]", b.Name, b.Start.Format(dateLayout), b.End.Format(dateLayout))
}

// Windows is an ordered set of resolved boundaries
type Windows []Boundary

// Get returns the boundary with the given name
func (w Windows) Get(name string) (Boundary, bool) {
	for _, b := range w {
		if b.Name == name {
			return b, true
		}
	}
	return Boundary{}, false
}

// Names returns boundary names in resolution order
func (w Windows) Names() []string {
	names := make([]string, len(w))
	for i, b := range w {
		names[i] = b.Name
	}
	return names
}

// Earliest returns the smallest start date, used as the lower read bound.
func (w Windows) Earliest() time.Time {
	var earliest time.Time
	for i, b := range w {
		if i == 0 || b.Start.Before(earliest) {
			earliest = b.Start
		}
	}
	return earliest
}

// Date builds a calendar date
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day, keeping the calendar date as seen in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// MonthStart returns the first day of the month containing d
func MonthStart(d time.Time) time.Time {
	return Date(d.Year(), d.Month(), 1)
}

// MonthEnd returns the last day of the month containing d
func MonthEnd(d time.Time) time.Time {
	return MonthStart(d).AddDate(0, 1, -1)
}

// QuarterStart returns the first day of the quarter containing d
func QuarterStart(d time.Time) time.Time {
	first := time.Month((int(d.Month())-1)/3*3 + 1)
	return Date(d.Year(), first, 1)
}

// QuarterEnd returns the last day of the quarter containing d
func QuarterEnd(d time.Time) time.Time {
	return QuarterStart(d).AddDate(0, 3, -1)
}

// Resolve derives every requested boundary from ref.
func Resolve(ref time.Time, names []Name) (Windows, error) {
	if ref.IsZero() {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "Reference date is not set").
			WithSuggestions("Pass --as-of or set as_of in the configuration")
	}
	ref = Truncate(ref)

	windows := make(Windows, 0, len(names))
	for _, name := range names {
		switch name {
		case PriorYear:
			windows = append(windows, Boundary{
				Name:  string(name),
				Start: Date(ref.Year()-1, time.January, 1),
				End:   Date(ref.Year()-1, time.December, 31),
			})
		case PriorYearToDate:
			windows = append(windows, Boundary{
				Name:  string(name),
				Start: Date(ref.Year()-1, time.January, 1),
				End:   sameDayPriorYear(ref),
			})
		case CurrentYear:
			windows = append(windows, current(name, Date(ref.Year(), time.January, 1), ref))
		case CurrentQuarter:
			windows = append(windows, Boundary{Name: string(name), Start: QuarterStart(ref), End: QuarterEnd(ref)})
		case CurrentMonth:
			windows = append(windows, Boundary{Name: string(name), Start: MonthStart(ref), End: MonthEnd(ref)})
		case LastFullMonth:
			windows = append(windows, lastFullMonth(ref))
		case LastFullMonthWeeks:
			windows = append(windows, WeeksOf(lastFullMonth(ref).Start)...)
		default:
			return nil, errors.New(errors.ErrCodeUnknownPeriod, fmt.Sprintf("Unknown period %q", name)).
				WithContext("period", string(name)).
				WithSuggestions("Valid periods: " + strings.Join(KnownNames(), ", "))
		}
	}

	return windows, nil
}

// RollingWeek returns the week bucket containing d. Weeks start on day 1, 8,
// 15, 22 and 29 of the month and never cross into the following month.
func RollingWeek(d time.Time) Boundary {
	d = Truncate(d)
	index := (d.Day() - 1) / 7
	start := MonthStart(d).AddDate(0, 0, index*7)
	end := start.AddDate(0, 0, 6)
	if last := MonthEnd(d); end.After(last) {
		end = last
	}
	return Boundary{
		Name:  fmt.Sprintf("week_%d", index+1),
		Start: start,
		End:   end,
	}
}

// WeeksOf enumerates the rolling weeks of the month containing d.
func WeeksOf(d time.Time) []Boundary {
	var weeks []Boundary
	last := MonthEnd(d)
	for day := MonthStart(d); !day.After(last); day = day.AddDate(0, 0, 7) {
		weeks = append(weeks, RollingWeek(day))
	}
	return weeks
}

// ReferenceDate interprets an as-of setting: "yesterday" (the default),
// "today" or an explicit YYYY-MM-DD date. now is converted to loc first.
func ReferenceDate(asOf string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	switch strings.ToLower(strings.TrimSpace(asOf)) {
	case "", "yesterday":
		return Truncate(local).AddDate(0, 0, -1), nil
	case "today":
		return Truncate(local), nil
	}

	d, err := time.Parse(dateLayout, strings.TrimSpace(asOf))
	if err != nil {
		return time.Time{}, errors.ValidationError("as_of", asOf, "expected yesterday, today or YYYY-MM-DD")
	}
	return d, nil
}

// ParseNames validates configured period names
func ParseNames(values []string) ([]Name, error) {
	names := make([]Name, 0, len(values))
	for _, v := range values {
		n := Name(strings.ToLower(strings.TrimSpace(v)))
		if !known[n] {
			return nil, errors.New(errors.ErrCodeUnknownPeriod, fmt.Sprintf("Unknown period %q", v)).
				WithContext("period", v).
				WithSuggestions("Valid periods: " + strings.Join(KnownNames(), ", "))
		}
		names = append(names, n)
	}
	return names, nil
}

// KnownNames lists every supported period name
func KnownNames() []string {
	return []string{
		string(PriorYear), string(PriorYearToDate), string(CurrentYear), string(CurrentQuarter),
		string(CurrentMonth), string(LastFullMonth), string(LastFullMonthWeeks),
	}
}

func current(name Name, start, ref time.Time) Boundary {
	return Boundary{Name: string(name), Start: start, End: ref, OpenEnded: true}
}

func lastFullMonth(ref time.Time) Boundary {
	start := MonthStart(ref).AddDate(0, -1, 0)
	return Boundary{
		Name:  string(LastFullMonth),
		Start: start,
		End:   MonthEnd(start),
	}
}

// sameDayPriorYear clamps Feb 29 to Feb 28 instead of rolling into March.
func sameDayPriorYear(ref time.Time) time.Time {
	y, m, d := ref.Year()-1, ref.Month(), ref.Day()
	if last := MonthEnd(Date(y, m, 1)).Day(); d > last {
		d = last
	}
	return Date(y, m, d)
}
