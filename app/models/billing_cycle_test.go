package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextCycleDate(t *testing.T) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		cycle string
		want  time.Time
	}{
		{BillingCycleWeekly, time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)},
		{BillingCycleBiweekly, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)},
		{BillingCycleMonthly, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{BillingCycleQuarterly, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{BillingCycleSemiAnnually, time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)},
		{BillingCycleYearly, time.Date(2027, 8, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.cycle, func(t *testing.T) {
			assert.Equal(t, tt.want, NextCycleDate(tt.cycle, from))
		})
	}
}

func TestNextCycleDateMonthEndNormalization(t *testing.T) {
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), NextCycleDate(BillingCycleMonthly, from))
}

func TestMembershipInvoiceNumberIsDeterministic(t *testing.T) {
	periodStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := MembershipInvoiceNumber(5, periodStart)
	second := MembershipInvoiceNumber(5, periodStart)

	assert.Equal(t, "INV-000005-20260801", first)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, MembershipInvoiceNumber(6, periodStart))
	assert.NotEqual(t, first, MembershipInvoiceNumber(5, periodStart.AddDate(0, 1, 0)))
}

func TestMembershipPriceCents(t *testing.T) {
	plan := &MembershipPlan{PriceCents: 14900}

	m := &Membership{}
	assert.Equal(t, int64(14900), m.PriceCents(plan))

	override := int64(9900)
	m.CustomPriceCents = &override
	assert.Equal(t, int64(9900), m.PriceCents(plan))
}
