package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Billing cycle units supported by membership plans.
const (
	BillingCycleWeekly       = "WEEKLY"
	BillingCycleBiweekly     = "BIWEEKLY"
	BillingCycleMonthly      = "MONTHLY"
	BillingCycleQuarterly    = "QUARTERLY"
	BillingCycleSemiAnnually = "SEMI_ANNUALLY"
	BillingCycleYearly       = "YEARLY"
)

// MembershipPlan is the pricing template memberships are created from.
type MembershipPlan struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	Name                   string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Description            string    `gorm:"type:text" json:"description"`
	PriceCents             int64     `gorm:"not null" json:"price_cents" validate:"gte=0"`
	Currency               string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"len=3"`
	BillingCycle           string    `gorm:"type:varchar(20);not null;default:'MONTHLY'" json:"billing_cycle" validate:"oneof=WEEKLY BIWEEKLY MONTHLY QUARTERLY SEMI_ANNUALLY YEARLY"`
	FamilyDiscountPercent  int       `gorm:"not null;default:0" json:"family_discount_percent" validate:"gte=0,lte=100"`
	AutoRenew              bool      `gorm:"default:true" json:"auto_renew"`
	ContractLengthMonths   int       `gorm:"not null;default:0" json:"contract_length_months" validate:"gte=0"`
	CancellationNoticeDays int       `gorm:"not null;default:0" json:"cancellation_notice_days" validate:"gte=0"`
	CancellationFeeCents   int64     `gorm:"not null;default:0" json:"cancellation_fee_cents" validate:"gte=0"`
	PortalPurchasable      bool      `gorm:"default:false;index" json:"portal_purchasable"`
	IsActive               bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *MembershipPlan) Validate() error {
	v := validator.New()
	return v.Struct(p)
}
