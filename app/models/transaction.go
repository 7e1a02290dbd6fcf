package models

import "time"

// Payment provider identifiers shared by transactions, invoices and members.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPayPal = "paypal"
	PaymentProviderSquare = "square"
)

const (
	TransactionStatusPending  = "PENDING"
	TransactionStatusPaid     = "PAID"
	TransactionStatusRefunded = "REFUNDED"
)

// Checkout origins a transaction can be funded from.
const (
	TransactionSourceAdminPOS      = "ADMIN_POS"
	TransactionSourcePortalStore   = "PORTAL_STORE"
	TransactionSourcePortalInvoice = "PORTAL_INVOICE"
	TransactionSourcePOSSplit      = "POS_SPLIT"
)

const (
	ItemTypeStoreItem       = "STORE_ITEM"
	ItemTypeMembershipPlan  = "MEMBERSHIP_PLAN"
	ItemTypeGiftCertificate = "GIFT_CERTIFICATE"
	ItemTypeAccountCredit   = "ACCOUNT_CREDIT"
)

// Transaction records a point-of-sale or portal purchase. The unique index on
// ExternalPaymentID is the webhook replay guard: a completion event whose
// payment id already has a transaction row is a no-op.
type Transaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	MemberID          *uint             `gorm:"index;default:null" json:"member_id,omitempty"`
	TotalCents        int64             `gorm:"not null" json:"total_cents"`
	Currency          string            `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status            string            `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Source            string            `gorm:"type:varchar(20);not null;index" json:"source"`
	ExternalPaymentID string            `gorm:"type:varchar(191);default:null;uniqueIndex" json:"external_payment_id"`
	PaymentProcessor  string            `gorm:"type:varchar(20);default:''" json:"payment_processor"`
	InvoiceID         *uint             `gorm:"index;default:null" json:"invoice_id,omitempty"`
	Items             []TransactionItem `gorm:"foreignKey:TransactionID" json:"items,omitempty"`
	PaidAt            *time.Time        `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	RefundedAt        *time.Time        `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransactionItem is one line of a transaction cart.
type TransactionItem struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	TransactionID  uint   `gorm:"not null;index" json:"transaction_id"`
	ItemType       string `gorm:"type:varchar(20);not null" json:"item_type"`
	ItemID         uint   `gorm:"not null" json:"item_id"`
	Description    string `gorm:"type:varchar(255)" json:"description"`
	Quantity       int    `gorm:"not null;default:1" json:"quantity"`
	UnitPriceCents int64  `gorm:"not null" json:"unit_price_cents"`
}

// TotalCents returns quantity times unit price for the line.
func (ti *TransactionItem) TotalCents() int64 {
	return int64(ti.Quantity) * ti.UnitPriceCents
}
