package payments

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// Repository provides the DB operations used by the payment orchestrator.
type Repository interface {
	MemberByID(id uint) (*models.Member, error)
	SaveGatewayCustomerRef(memberID uint, provider, customerRef string) error

	InvoiceByID(id uint) (*models.Invoice, error)
	MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error
	MarkInvoiceRefunded(id uint) error

	TransactionByID(id uint) (*models.Transaction, error)
	TransactionByExternalPaymentID(externalPaymentID string) (*models.Transaction, error)
	CreateTransactionIfNew(tx *models.Transaction) (bool, error)
	MarkTransactionPaid(id uint, externalPaymentID, processor string, paidAt time.Time) error
	MarkTransactionRefunded(id uint, at time.Time) error

	PlanByID(id uint) (*models.MembershipPlan, error)
	CreateMembership(m *models.Membership) error
	DecrementStock(itemID uint, quantity int) error
	CreateGiftCertificate(gc *models.GiftCertificate) error
	AdjustMemberCredit(memberID uint, deltaCents int64) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) MemberByID(id uint) (*models.Member, error) {
	var member models.Member
	if err := r.db.First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *gormRepository) SaveGatewayCustomerRef(memberID uint, provider, customerRef string) error {
	column := ""
	switch provider {
	case models.PaymentProviderStripe:
		column = "stripe_customer_id"
	case models.PaymentProviderPayPal:
		column = "pay_pal_payer_id"
	case models.PaymentProviderSquare:
		column = "square_customer_id"
	default:
		return fmt.Errorf("unknown payment provider %q", provider)
	}
	return r.db.Model(&models.Member{}).Where("id = ?", memberID).
		Update(column, customerRef).Error
}

func (r *gormRepository) InvoiceByID(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.First(&invoice, id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *gormRepository) MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":              models.InvoiceStatusPaid,
		"external_payment_id": externalPaymentID,
		"payment_processor":   processor,
		"paid_at":             &paidAt,
		"next_retry_date":     nil,
	}).Error
}

func (r *gormRepository) MarkInvoiceRefunded(id uint) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("status", models.InvoiceStatusRefunded).Error
}

func (r *gormRepository) TransactionByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Preload("Items").First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) TransactionByExternalPaymentID(externalPaymentID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("external_payment_id = ?", externalPaymentID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// CreateTransactionIfNew inserts a transaction keyed by its external payment
// id. A conflicting row means the same completion event was already
// materialized; the caller treats that as a replay and stops.
func (r *gormRepository) CreateTransactionIfNew(tx *models.Transaction) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) MarkTransactionPaid(id uint, externalPaymentID, processor string, paidAt time.Time) error {
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":              models.TransactionStatusPaid,
		"external_payment_id": externalPaymentID,
		"payment_processor":   processor,
		"paid_at":             &paidAt,
	}).Error
}

func (r *gormRepository) MarkTransactionRefunded(id uint, at time.Time) error {
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.TransactionStatusRefunded,
		"refunded_at": &at,
	}).Error
}

func (r *gormRepository) PlanByID(id uint) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) CreateMembership(m *models.Membership) error {
	return r.db.Create(m).Error
}

// DecrementStock atomically reduces inventory; stock may legitimately go
// negative when front-desk sales race the webhook.
func (r *gormRepository) DecrementStock(itemID uint, quantity int) error {
	res := r.db.Model(&models.StoreItem{}).
		Where("id = ? AND track_stock = ?", itemID, true).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", quantity))
	return res.Error
}

func (r *gormRepository) CreateGiftCertificate(gc *models.GiftCertificate) error {
	return r.db.Create(gc).Error
}

// AdjustMemberCredit applies a signed delta to the running balance with an
// atomic increment so concurrent POS and dunning writers cannot lose
// updates.
func (r *gormRepository) AdjustMemberCredit(memberID uint, deltaCents int64) error {
	res := r.db.Model(&models.Member{}).Where("id = ?", memberID).
		Update("account_credit_cents", gorm.Expr("account_credit_cents + ?", deltaCents))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("member not found for credit adjustment")
	}
	return nil
}
