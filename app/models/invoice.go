package models

import (
	"fmt"
	"time"
)

const (
	InvoiceStatusPending  = "PENDING"
	InvoiceStatusPaid     = "PAID"
	InvoiceStatusPastDue  = "PAST_DUE"
	InvoiceStatusFailed   = "FAILED"
	InvoiceStatusRefunded = "REFUNDED"
)

// Invoice is one billed membership period. Invoices are never deleted; once
// PAID they are an immutable audit record. The unique index on InvoiceNumber
// is the idempotency guard against duplicate billing runs: a duplicate-key
// insert means "already invoiced", not an error.
type Invoice struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	InvoiceNumber      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"invoice_number"`
	MembershipID       uint       `gorm:"not null;index" json:"membership_id"`
	MemberID           uint       `gorm:"not null;index" json:"member_id"`
	AmountCents        int64      `gorm:"not null" json:"amount_cents"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status             string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Notes              string     `gorm:"type:text" json:"notes"`
	DueDate            time.Time  `gorm:"not null;index" json:"due_date"`
	BillingPeriodStart time.Time  `gorm:"not null" json:"billing_period_start"`
	BillingPeriodEnd   time.Time  `gorm:"not null" json:"billing_period_end"`
	RetryCount         int        `gorm:"not null;default:0" json:"retry_count"`
	LastRetryDate      *time.Time `gorm:"type:timestamp;default:null" json:"last_retry_date,omitempty"`
	NextRetryDate      *time.Time `gorm:"type:timestamp;default:null;index" json:"next_retry_date,omitempty"`
	ExternalPaymentID  string     `gorm:"type:varchar(191);default:'';index" json:"external_payment_id"`
	PaymentProcessor   string     `gorm:"type:varchar(20);default:''" json:"payment_processor"`
	PaidAt             *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MembershipInvoiceNumber builds the deterministic invoice number for a
// membership billing period. Determinism is what makes the uniqueness
// constraint double as the duplicate-run guard.
func MembershipInvoiceNumber(membershipID uint, periodStart time.Time) string {
	return fmt.Sprintf("INV-%06d-%s", membershipID, periodStart.Format("20060102"))
}

// IsOpen reports whether the invoice can still be collected on.
func (i *Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusPending, InvoiceStatusPastDue, InvoiceStatusFailed:
		return true
	default:
		return false
	}
}
