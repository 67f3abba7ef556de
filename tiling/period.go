package tiling

import (
	"strings"
	"time"
)

type Period string

const (
	PeriodDry    Period = "DRY"
	PeriodWet    Period = "WET"
	PeriodMonth  Period = "MONTH"
	PeriodCustom Period = "CUSTOM"
	// PeriodYear is the calendar year, used by annual collections.
	PeriodYear Period = "YEAR"
)

var periods = []Period{PeriodDry, PeriodWet, PeriodMonth, PeriodCustom, PeriodYear}

func Periods() []Period {
	return append([]Period(nil), periods...)
}

func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range periods {
		if p == known {
			return p, nil
		}
	}
	return "", invalid("period", "must be one of DRY, WET, MONTH, CUSTOM, YEAR, got %q", s)
}

// DateRange returns the half-open acquisition window [start, end) of a
// validated request. The dry season runs April to September of the year,
// the wet season October of the previous year to March of the year. YEAR
// covers the calendar year and a custom range includes its end day.
func (r TileRequest) DateRange() (time.Time, time.Time) {
	switch r.Period {
	case PeriodDry:
		return date(r.Year, time.April, 1), date(r.Year, time.October, 1)
	case PeriodWet:
		return date(r.Year-1, time.October, 1), date(r.Year, time.April, 1)
	case PeriodMonth:
		start := date(r.Year, time.Month(r.Month.OrElse(1)), 1)
		return start, start.AddDate(0, 1, 0)
	case PeriodYear:
		return date(r.Year, time.January, 1), date(r.Year+1, time.January, 1)
	default:
		return r.Start, r.End.AddDate(0, 0, 1)
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
