package models

import "time"

// NextCycleDate advances a date by one billing cycle. Month-based cycles use
// calendar arithmetic, so Jan 31 + MONTHLY normalizes the way time.AddDate
// does.
func NextCycleDate(billingCycle string, from time.Time) time.Time {
	switch billingCycle {
	case BillingCycleWeekly:
		return from.AddDate(0, 0, 7)
	case BillingCycleBiweekly:
		return from.AddDate(0, 0, 14)
	case BillingCycleQuarterly:
		return from.AddDate(0, 3, 0)
	case BillingCycleSemiAnnually:
		return from.AddDate(0, 6, 0)
	case BillingCycleYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
