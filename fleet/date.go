package fleet

import (
	"time"
)

// =============================================================================
// DATE - Day-granularity time point (bookings are whole days)
// =============================================================================

// Date is a calendar day. The contained time is always midnight UTC so that
// two Dates built from different wall-clock times still compare equal.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its calendar day (UTC).
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Year(), t.UTC().Month(), t.UTC().Day())
}

func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses the wire format "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: "expected YYYY-MM-DD: " + s}
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// DATE RANGE - Inclusive [Start, End] interval used by bookings
// =============================================================================

// DateRange is an inclusive interval of calendar days.
// Both boundaries count: a contract ending on the day another one starts
// still occupies that day, so the two ranges overlap.
type DateRange struct {
	Start Date
	End   Date
}

func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Valid reports whether Start <= End.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End)
}

// Contains returns true if d is within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps applies the inclusive overlap test:
// other.Start <= r.End AND other.End >= r.Start.
func (r DateRange) Overlaps(other DateRange) bool {
	return other.Start.BeforeOrEqual(r.End) && other.End.AfterOrEqual(r.Start)
}

// Days returns the number of calendar days covered, boundaries included.
func (r DateRange) Days() int {
	return int(r.End.Time.Sub(r.Start.Time).Hours()/24) + 1
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
