/*
calendar.go - Day-range descriptors and date keys

PURPOSE:
  Expands a date interval into one descriptor per calendar day, with the
  stable date key (YYYY-MM-DD) that joins manual state, tracked state,
  segments and notes.

DST SAFETY:
  Iteration uses day-granularity AddDate, never division of a millisecond
  interval, so ranges crossing DST transitions still produce exactly one
  descriptor per calendar day. Date keys come from the LOCAL calendar date,
  not a UTC ISO slice: a UTC-based key shifts to the previous/next day near
  midnight in non-UTC timezones.

SEE ALSO:
  - totals.go: iterates descriptors for per-day totals
  - planner.go: DateTimeForKey for payload timestamps
*/
package registry

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

// DayDescriptor describes one calendar day in the selected range. Immutable,
// derived purely from the date; regenerated whenever the range changes.
type DayDescriptor struct {
	Date         time.Time `json:"date"`
	DateKey      string    `json:"dateKey"`
	Label        string    `json:"label"`
	ShortLabel   string    `json:"shortLabel"`
	CompactLabel string    `json:"compactLabel"`
	DayOfMonth   int       `json:"dayOfMonth"`
}

var spanishWeekdays = [7]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

var spanishMonths = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// DateKeyFor returns the canonical YYYY-MM-DD key for the local calendar
// date of t.
func DateKeyFor(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDateKey converts a YYYY-MM-DD key back to a local-midnight time.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// startOfDay normalizes to local midnight.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// capitalizeFirst upper-cases the first letter of a label.
func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// BuildDayDescriptors expands [start, end] into one descriptor per calendar
// day, inclusive of both ends. Bounds are normalized to local midnight and
// swapped if reversed.
func BuildDayDescriptors(start, end time.Time) []DayDescriptor {
	from, to := startOfDay(start), startOfDay(end)
	if to.Before(from) {
		from, to = to, from
	}

	var days []DayDescriptor
	for current := from; !current.After(to); current = current.AddDate(0, 0, 1) {
		days = append(days, NewDayDescriptor(current))
	}
	return days
}

// NewDayDescriptor builds the descriptor for a single date.
func NewDayDescriptor(t time.Time) DayDescriptor {
	day := startOfDay(t)
	weekday := spanishWeekdays[int(day.Weekday())]
	month := spanishMonths[int(day.Month())-1]

	label := capitalizeFirst(fmt.Sprintf("%s %d de %s", weekday, day.Day(), month))
	short := capitalizeFirst(fmt.Sprintf("%s %d", string([]rune(weekday)[:3]), day.Day()))
	compact := capitalizeFirst(string([]rune(weekday)[:1]))

	return DayDescriptor{
		Date:         day,
		DateKey:      DateKeyFor(day),
		Label:        label,
		ShortLabel:   short,
		CompactLabel: compact,
		DayOfMonth:   day.Day(),
	}
}

// DateTimeForKey renders the control-schedule timestamp for a date key:
// date-only precision, time fixed to midnight UTC by convention.
func DateTimeForKey(dateKey string) string {
	return dateKey + "T00:00:00+00:00"
}
