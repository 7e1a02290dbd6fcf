package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// Repository provides the DB operations used by the billing engine.
type Repository interface {
	DueMemberships(now time.Time) ([]models.Membership, error)
	FamilySize(memberID uint) (int, error)
	CreateInvoiceIfNew(invoice *models.Invoice) (bool, error)
	MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error
	AdvanceMembershipSchedule(membershipID uint, nextPaymentDate time.Time, lastPaymentDate *time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// DueMemberships selects active auto-renewing memberships whose next payment
// date has arrived, with member and plan preloaded.
func (r *gormRepository) DueMemberships(now time.Time) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.
		Joins("MembershipPlan").
		Preload("Member").
		Where("memberships.status = ?", models.MembershipStatusActive).
		Where("memberships.next_payment_date IS NOT NULL AND memberships.next_payment_date <= ?", now).
		Where("MembershipPlan.auto_renew = ?", true).
		Find(&memberships).Error
	return memberships, err
}

func (r *gormRepository) FamilySize(memberID uint) (int, error) {
	return models.FamilySize(r.db, memberID)
}

// CreateInvoiceIfNew inserts an invoice guarded by the invoice-number
// uniqueness constraint. A conflict means the period was already invoiced by
// an earlier (or concurrent) run and is reported as created=false.
func (r *gormRepository) CreateInvoiceIfNew(invoice *models.Invoice) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_number"}},
		DoNothing: true,
	}).Create(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

func (r *gormRepository) MarkInvoicePaid(id uint, externalPaymentID, processor string, paidAt time.Time) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":              models.InvoiceStatusPaid,
		"external_payment_id": externalPaymentID,
		"payment_processor":   processor,
		"paid_at":             &paidAt,
	}).Error
}

// AdvanceMembershipSchedule moves the membership to its next cycle; the last
// payment date is only written when the cycle's charge actually succeeded.
func (r *gormRepository) AdvanceMembershipSchedule(membershipID uint, nextPaymentDate time.Time, lastPaymentDate *time.Time) error {
	updates := map[string]interface{}{
		"next_payment_date": nextPaymentDate,
	}
	if lastPaymentDate != nil {
		updates["last_payment_date"] = lastPaymentDate
	}
	return r.db.Model(&models.Membership{}).Where("id = ?", membershipID).Updates(updates).Error
}
