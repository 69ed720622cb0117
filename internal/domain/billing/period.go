package billing

import (
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/shared"
)

// Period is a calendar month billing cycle.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	t = t.In(loc)
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, shared.InvalidInput("period", "must be formatted as YYYY-MM")
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// String renders the period as "YYYY-MM", the form stored on invoices.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label renders the period as "MM/YYYY" for invoice descriptions.
func (p Period) Label() string {
	return fmt.Sprintf("%02d/%04d", int(p.Month), p.Year)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Year == 0 }

// Start is the first instant of the period in loc.
func (p Period) Start(loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
}

// End is the first instant after the period in loc.
func (p Period) End(loc *time.Location) time.Time {
	return p.Start(loc).AddDate(0, 1, 0)
}

// Next returns the following period.
func (p Period) Next() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// DueDate returns billingDay of the period, clamped to the last day of
// the month.
func (p Period) DueDate(billingDay int, loc *time.Location) time.Time {
	last := p.End(loc).AddDate(0, 0, -1).Day()
	if billingDay > last {
		billingDay = last
	}
	if billingDay < 1 {
		billingDay = 1
	}
	return time.Date(p.Year, p.Month, billingDay, 0, 0, 0, 0, loc)
}

// NextBillingDate returns the first due date on or after from.
func NextBillingDate(from time.Time, billingDay int, loc *time.Location) time.Time {
	p := PeriodOf(from, loc)
	due := p.DueDate(billingDay, loc)
	if due.Before(startOfDay(from, loc)) {
		due = p.Next().DueDate(billingDay, loc)
	}
	return due
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
