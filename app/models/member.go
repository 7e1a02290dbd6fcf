package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
	MemberStatusArchived = "archived"
)

// Member is a studio customer. AccountCreditCents is a signed running balance
// (POS credit, dunning debits); it must only ever be changed through atomic
// increments, never read-modify-write.
type Member struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	FirstName              string         `gorm:"type:varchar(100);not null" json:"first_name" validate:"required,min=1,max=100"`
	LastName               string         `gorm:"type:varchar(100);not null" json:"last_name" validate:"required,min=1,max=100"`
	Email                  string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Phone                  string         `gorm:"type:varchar(30);default:''" json:"phone"`
	Status                 string         `gorm:"type:varchar(20);default:'active';index" json:"status" validate:"oneof=active inactive archived"`
	AccountCreditCents     int64          `gorm:"not null;default:0" json:"account_credit_cents"`
	StripeCustomerID       string         `gorm:"type:varchar(191);default:'';index" json:"-"`
	PayPalPayerID          string         `gorm:"type:varchar(191);default:''" json:"-"`
	SquareCustomerID       string         `gorm:"type:varchar(191);default:''" json:"-"`
	DefaultPaymentMethodID string         `gorm:"type:varchar(191);default:''" json:"-"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *Member) Validate() error {
	v := validator.New()
	return v.Struct(m)
}

// FullName returns the member's display name.
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// GatewayCustomerID returns the stored customer reference for the given
// payment provider, or "" when the member has never been seen by it.
func (m *Member) GatewayCustomerID(provider string) string {
	switch provider {
	case PaymentProviderStripe:
		return m.StripeCustomerID
	case PaymentProviderPayPal:
		return m.PayPalPayerID
	case PaymentProviderSquare:
		return m.SquareCustomerID
	default:
		return ""
	}
}
