package models

import "time"

const (
	MembershipStatusActive   = "ACTIVE"
	MembershipStatusPaused   = "PAUSED"
	MembershipStatusCanceled = "CANCELED"
	MembershipStatusExpired  = "EXPIRED"
)

// Membership links a member to a plan for a billed period of time.
//
// Invariant: NextPaymentDate is non-nil only while Status is ACTIVE and the
// plan auto-renews. Canceling, expiring or pausing a membership clears it.
type Membership struct {
	ID                        uint           `gorm:"primaryKey" json:"id"`
	MemberID                  uint           `gorm:"not null;index" json:"member_id"`
	Member                    Member         `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	MembershipPlanID          uint           `gorm:"not null;index" json:"membership_plan_id"`
	MembershipPlan            MembershipPlan `gorm:"foreignKey:MembershipPlanID" json:"membership_plan,omitempty"`
	Status                    string         `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	StartDate                 time.Time      `gorm:"not null" json:"start_date"`
	EndDate                   *time.Time     `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	NextPaymentDate           *time.Time     `gorm:"type:timestamp;default:null;index" json:"next_payment_date,omitempty"`
	LastPaymentDate           *time.Time     `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	CustomPriceCents          *int64         `gorm:"default:null" json:"custom_price_cents,omitempty"`
	CancellationRequestDate   *time.Time     `gorm:"type:timestamp;default:null" json:"cancellation_request_date,omitempty"`
	CancellationEffectiveDate *time.Time     `gorm:"type:timestamp;default:null;index" json:"cancellation_effective_date,omitempty"`
	PauseEndDate              *time.Time     `gorm:"type:timestamp;default:null" json:"pause_end_date,omitempty"`
	CreatedAt                 time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceCents resolves the effective per-cycle price: the member-specific
// override when set, otherwise the plan price.
func (m *Membership) PriceCents(plan *MembershipPlan) int64 {
	if m.CustomPriceCents != nil {
		return *m.CustomPriceCents
	}
	return plan.PriceCents
}
