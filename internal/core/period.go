package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the calendar month a charge is invoiced in.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// NewPeriod builds a period, normalizing month overflow (month 13 is January of the next year).
func NewPeriod(year int, month time.Month) Period {
	return normalizePeriod(year, int(month))
}

// ParsePeriod parses the "MM-YYYY" store format. A single-digit month is accepted.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	mm, yyyy, ok := strings.Cut(s, "-")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 1 || m > 12 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	y, err := strconv.Atoi(yyyy)
	if err != nil || len(yyyy) != 4 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: y, Month: time.Month(m)}, nil
}

// AddMonths moves the period by n months. Day-of-month never plays a role.
func (p Period) AddMonths(n int) Period {
	return normalizePeriod(p.Year, int(p.Month)+n)
}

func normalizePeriod(year, month int) Period {
	idx := year*12 + month - 1
	y, m := idx/12, idx%12
	if m < 0 {
		y--
		m += 12
	}
	return Period{Year: y, Month: time.Month(m + 1)}
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Before reports whether p is earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// String formats the period as MM-YYYY.
func (p Period) String() string {
	return fmt.Sprintf("%02d-%04d", int(p.Month), p.Year)
}

func (p Period) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
