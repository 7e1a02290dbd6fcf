package models

import "time"

const (
	GiftCertificateStatusActive   = "ACTIVE"
	GiftCertificateStatusRedeemed = "REDEEMED"
	GiftCertificateStatusExpired  = "EXPIRED"
)

// GiftCertificate is a prepaid balance sold through checkout and spendable as
// POS tender. RemainingValueCents only ever decreases, via atomic updates.
type GiftCertificate struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Code                string     `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	PurchasedByMemberID *uint      `gorm:"index;default:null" json:"purchased_by_member_id,omitempty"`
	InitialValueCents   int64      `gorm:"not null" json:"initial_value_cents"`
	RemainingValueCents int64      `gorm:"not null" json:"remaining_value_cents"`
	Status              string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	ExpiresAt           *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
