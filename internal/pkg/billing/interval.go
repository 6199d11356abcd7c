package billing

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

// noFixedEndDays is the period length used for plans without a billing interval.
const noFixedEndDays = 365

// NextBillingDate returns start advanced by count intervals.
//
// Month based intervals are calendar aware and clamp to the last day of the
// target month when the start day does not exist there (Jan 31 + 1 month is
// Feb 28, or Feb 29 in leap years). Clock time of day is preserved.
func NextBillingDate(start time.Time, interval string, count int) (time.Time, error) {
	if count < 1 {
		count = 1
	}
	switch interval {
	case models.BillingIntervalDaily:
		return start.AddDate(0, 0, count), nil
	case models.BillingIntervalWeekly:
		return start.AddDate(0, 0, 7*count), nil
	case models.BillingIntervalMonthly:
		return addMonthsClamped(start, count), nil
	case models.BillingIntervalQuarterly:
		return addMonthsClamped(start, 3*count), nil
	case models.BillingIntervalSemiAnnual:
		return addMonthsClamped(start, 6*count), nil
	case models.BillingIntervalYearly:
		return addMonthsClamped(start, 12*count), nil
	case "":
		return time.Time{}, fmt.Errorf("%w: billing interval is not set", ErrInvalidPlan)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown billing interval %q", ErrInvalidPlan, interval)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	// Day 1 of the target month never overflows.
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addDays adds whole days as fixed 24 hour steps.
func addDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * 24 * time.Hour)
}

// periodEnd computes the end of a period of plan that starts at start.
func periodEnd(plan *models.MembershipPlan, start time.Time) (time.Time, error) {
	if plan.RequiresInterval() {
		return NextBillingDate(start, plan.BillingInterval, plan.IntervalCount)
	}
	return addDays(start, noFixedEndDays), nil
}
