package model

import (
	"fmt"
	"time"
)

// Period is a unique (year, month) time bucket to which balances and
// transactions are anchored. Periods are append-only and created on demand
// when the first balance or transaction referencing them is recorded.
type Period struct {
	ID    string
	Year  int
	Month time.Month
	Label string
}

// PeriodID returns the canonical ID for a (year, month) pair. Using the
// calendar month itself as the document key means no two Period rows can
// ever represent the same month.
func PeriodID(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// NewPeriod builds the canonical Period for a (year, month) pair.
func NewPeriod(year int, month time.Month) *Period {
	return &Period{
		ID:    PeriodID(year, month),
		Year:  year,
		Month: month,
		Label: fmt.Sprintf("%s %d", month.String(), year),
	}
}

// Next returns the canonical Period for the following calendar month.
func (p *Period) Next() *Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return NewPeriod(t.Year(), t.Month())
}

// Prev returns the canonical Period for the preceding calendar month.
func (p *Period) Prev() *Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return NewPeriod(t.Year(), t.Month())
}
