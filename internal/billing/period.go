package billing

import (
	"time"

	"github.com/rotisserie/eris"
)

// Period is a half-open billing window [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthPeriod returns the calendar month containing t, in UTC.
func MonthPeriod(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// ParsePeriod parses a "YYYY-MM" month. An empty string is the current month.
func ParsePeriod(s string, now time.Time) (Period, error) {
	if s == "" {
		return MonthPeriod(now), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, eris.Wrapf(err, "billing: parse period %q", s)
	}
	return MonthPeriod(t), nil
}

// String formats the period as its starting month.
func (p Period) String() string {
	return p.Start.Format("2006-01")
}
