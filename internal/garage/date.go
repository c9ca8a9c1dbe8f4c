package garage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"iter"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day, normalized to midnight UTC.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the day t falls on in its own location. Time of day is dropped.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("error parsing date %q: %w", s, err)
	}

	return Date{t: t}, nil
}

// MustDate parses s and panics if it isn't a date. For tests and constants.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) Time() time.Time { return d.t }
func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }
func (d Date) DaysUntil(o Date) int { return int(o.t.Sub(d.t).Hours() / 24) }

// Scan implements [sql.Scanner]. Dates are stored as TEXT in [DateLayout].
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = DateOf(v.UTC())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into a date", src)
	}
}

// Value implements [driver.Valuer].
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(byts []byte) error {
	var s string
	if err := json.Unmarshal(byts, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is a closed interval of days: both Start and End are included.
type Range struct {
	Start Date `db:"start_date" json:"start_date"`
	End   Date `db:"end_date" json:"end_date"`
}

func NewRange(start, end Date) (Range, error) {
	r := Range{Start: start, End: end}
	return r, r.Validate()
}

func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("start and end are required: %w", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("end %s is before start %s: %w", r.End, r.Start, ErrInvalidRange)
	}

	return nil
}

// MaxSpanDays is the longest range that can be queried, booked or blocked at once. Checking a
// range walks it day by day, inside the write transaction when taking it.
const MaxSpanDays = 366

// ValidateSpan is [Range.Validate] that also turns away ranges longer than [MaxSpanDays].
func (r Range) ValidateSpan() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if n := r.Len(); n > MaxSpanDays {
		return fmt.Errorf("range of %d days is longer than %d: %w", n, MaxSpanDays, ErrInvalidRange)
	}

	return nil
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) Overlaps(o Range) bool {
	return !r.End.Before(o.Start) && !o.End.Before(r.Start)
}

// Len is the number of days in the range.
func (r Range) Len() int {
	return r.Start.DaysUntil(r.End) + 1
}

// Days yields every day of the range in order.
func (r Range) Days() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}
