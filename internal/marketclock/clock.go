package marketclock

import (
	"time"

	"github.com/pkg/errors"
)

// NYSE regular session bounds, exchange-local time.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// Full-day NYSE closures. Early-close days are treated as regular sessions;
// the worst case is a handful of no-op evaluation ticks against a closed
// market.
var holidays = map[string]struct{}{
	"2024-01-01": {}, "2024-01-15": {}, "2024-02-19": {}, "2024-03-29": {},
	"2024-05-27": {}, "2024-06-19": {}, "2024-07-04": {}, "2024-09-02": {},
	"2024-11-28": {}, "2024-12-25": {},

	"2025-01-01": {}, "2025-01-09": {}, "2025-01-20": {}, "2025-02-17": {},
	"2025-04-18": {}, "2025-05-26": {}, "2025-06-19": {}, "2025-07-04": {},
	"2025-09-01": {}, "2025-11-27": {}, "2025-12-25": {},

	"2026-01-01": {}, "2026-01-19": {}, "2026-02-16": {}, "2026-04-03": {},
	"2026-05-25": {}, "2026-06-19": {}, "2026-07-03": {}, "2026-09-07": {},
	"2026-11-26": {}, "2026-12-25": {},

	"2027-01-01": {}, "2027-01-18": {}, "2027-02-15": {}, "2027-03-26": {},
	"2027-05-31": {}, "2027-06-18": {}, "2027-07-05": {}, "2027-09-06": {},
	"2027-11-25": {}, "2027-12-24": {},
}

// Clock answers market-hours queries against the NYSE trading calendar.
// All methods are pure functions of the supplied instant.
type Clock struct {
	loc *time.Location
}

func New() (*Clock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, errors.Wrap(err, "could not load exchange timezone")
	}
	return &Clock{loc: loc}, nil
}

// IsOpen reports whether the regular session is in progress at t.
func (c *Clock) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.isTradingDay(local) {
		return false
	}
	open := sessionOpen(local)
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, c.loc)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the delay from t until the next session open. The result
// is strictly positive when the market is closed at t; callers must not ask
// while the market is open.
func (c *Clock) NextOpen(t time.Time) time.Duration {
	local := t.In(c.loc)

	if c.isTradingDay(local) {
		open := sessionOpen(local)
		if local.Before(open) {
			return open.Sub(local)
		}
	}

	day := local.AddDate(0, 0, 1)
	for !c.isTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return sessionOpen(day).Sub(local)
}

func (c *Clock) isTradingDay(local time.Time) bool {
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := holidays[local.Format("2006-01-02")]
	return !holiday
}

func sessionOpen(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, local.Location())
}
