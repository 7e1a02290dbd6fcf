// Package contracts answers minimum-term and cancellation questions for
// memberships. All functions are pure; callers pass the clock in.
package contracts

import (
	"time"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// ContractEndDate returns when the minimum term of the membership ends, or
// the zero time when the plan carries no minimum term.
func ContractEndDate(membership *models.Membership, plan *models.MembershipPlan) time.Time {
	if plan.ContractLengthMonths <= 0 {
		return time.Time{}
	}
	return membership.StartDate.AddDate(0, plan.ContractLengthMonths, 0)
}

// IsUnderContract reports whether the membership is still inside its minimum
// term as of now.
func IsUnderContract(membership *models.Membership, plan *models.MembershipPlan, now time.Time) bool {
	end := ContractEndDate(membership, plan)
	if end.IsZero() {
		return false
	}
	return now.Before(end)
}

// EarlyTerminationFee is the fee owed for canceling as of now. Zero once the
// minimum term has run out.
func EarlyTerminationFee(membership *models.Membership, plan *models.MembershipPlan, now time.Time) int64 {
	if !IsUnderContract(membership, plan, now) {
		return 0
	}
	return plan.CancellationFeeCents
}

// CancellationEffectiveDate is the earliest date a cancellation requested now
// can take effect. The membership stays active and billable until then.
func CancellationEffectiveDate(plan *models.MembershipPlan, now time.Time) time.Time {
	if plan.CancellationNoticeDays <= 0 {
		return now
	}
	return now.AddDate(0, 0, plan.CancellationNoticeDays)
}

// Quote bundles everything the cancellation flow needs to show a member
// before they confirm.
type Quote struct {
	UnderContract bool      `json:"under_contract"`
	ContractEnd   time.Time `json:"contract_end,omitempty"`
	FeeCents      int64     `json:"fee_cents"`
	EffectiveDate time.Time `json:"effective_date"`
}

// QuoteCancellation computes the full cancellation quote as of now.
func QuoteCancellation(membership *models.Membership, plan *models.MembershipPlan, now time.Time) Quote {
	return Quote{
		UnderContract: IsUnderContract(membership, plan, now),
		ContractEnd:   ContractEndDate(membership, plan),
		FeeCents:      EarlyTerminationFee(membership, plan, now),
		EffectiveDate: CancellationEffectiveDate(plan, now),
	}
}
