package alert

import (
	"time"

	"telegram-stock-alert/internal/types"
)

// TradingDays counts the business days (Monday through Friday, no holiday
// adjustment) in the half-open span (from, to]. A same-day or reversed span
// counts zero.
func TradingDays(from, to time.Time) int {
	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// ProjectAt extrapolates the trend line defined by the spec's two anchors to
// the target date, using trading-day count as the x axis so weekends do not
// distort the slope. A zero-trading-day anchor span degrades to Price2.
func ProjectAt(spec types.CustomLineSpec, target time.Time) float64 {
	span := TradingDays(spec.Date1, spec.Date2)
	if span == 0 {
		return spec.Price2
	}

	elapsed := TradingDays(spec.Date1, target)
	if elapsed == span {
		// Exact at the second anchor.
		return spec.Price2
	}

	slope := (spec.Price2 - spec.Price1) / float64(span)
	return spec.Price1 + slope*float64(elapsed)
}
