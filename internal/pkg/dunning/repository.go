package dunning

import (
	"time"

	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// Repository provides the DB operations used by the dunning engine.
type Repository interface {
	OverduePendingInvoices(cutoff time.Time) ([]models.Invoice, error)
	MarkInvoicePastDue(id uint, nextRetryDate time.Time) error
	RetryableInvoices(now time.Time) ([]models.Invoice, error)
	RecordRetryFailure(id uint, retryCount int, lastRetryDate time.Time, nextRetryDate *time.Time, terminal bool) error
	MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error
	SuspendMembership(id uint) (bool, error)
	MemberByID(id uint) (*models.Member, error)
	AdjustMemberCredit(memberID uint, deltaCents int64) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a dunning repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) OverduePendingInvoices(cutoff time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("status = ? AND due_date <= ?", models.InvoiceStatusPending, cutoff).
		Find(&invoices).Error
	return invoices, err
}

func (r *gormRepository) MarkInvoicePastDue(id uint, nextRetryDate time.Time) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          models.InvoiceStatusPastDue,
		"next_retry_date": &nextRetryDate,
	}).Error
}

func (r *gormRepository) RetryableInvoices(now time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("status IN ?", []string{models.InvoiceStatusPastDue, models.InvoiceStatusFailed}).
		Where("next_retry_date IS NOT NULL AND next_retry_date <= ?", now).
		Find(&invoices).Error
	return invoices, err
}

// RecordRetryFailure writes the retry bookkeeping for a failed attempt. The
// terminal step moves the invoice to FAILED and stops the ladder by clearing
// the next retry date.
func (r *gormRepository) RecordRetryFailure(id uint, retryCount int, lastRetryDate time.Time, nextRetryDate *time.Time, terminal bool) error {
	updates := map[string]interface{}{
		"retry_count":     retryCount,
		"last_retry_date": &lastRetryDate,
		"next_retry_date": nextRetryDate,
	}
	if terminal {
		updates["status"] = models.InvoiceStatusFailed
	}
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(updates).Error
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

// SuspendMembership pauses an active membership and clears its payment
// schedule. Returns false when the membership was not active (already
// suspended or canceled), which is not an error.
func (r *gormRepository) SuspendMembership(id uint) (bool, error) {
	res := r.db.Model(&models.Membership{}).
		Where("id = ? AND status = ?", id, models.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":            models.MembershipStatusPaused,
			"next_payment_date": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) MemberByID(id uint) (*models.Member, error) {
	var member models.Member
	if err := r.db.First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *gormRepository) AdjustMemberCredit(memberID uint, deltaCents int64) error {
	return r.db.Model(&models.Member{}).Where("id = ?", memberID).
		Update("account_credit_cents", gorm.Expr("account_credit_cents + ?", deltaCents)).Error
}
