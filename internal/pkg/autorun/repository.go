package autorun

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// Repository provides the DB operations used by the daily-run coordinator.
type Repository interface {
	ClaimRun(runDate string, startedAt time.Time) (bool, error)
	FinalizeRun(runDate string, log *models.AutoRunLog) error
	ScheduledCancellations(now time.Time) ([]models.Membership, error)
	CancelMembership(id uint, endDate time.Time) error
	ExpiredTrialPasses(now time.Time) ([]models.TrialPass, error)
	ExpireTrialPass(id uint) error
	MemberByID(id uint) (*models.Member, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an autorun repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// ClaimRun inserts the per-day run marker. The unique constraint on run_date
// is the authoritative guard against duplicate daily triggers; a conflict
// means another invocation already claimed today.
func (r *gormRepository) ClaimRun(runDate string, startedAt time.Time) (bool, error) {
	entry := models.AutoRunLog{RunDate: runDate, StartedAt: startedAt}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_date"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) FinalizeRun(runDate string, log *models.AutoRunLog) error {
	now := time.Now()
	return r.db.Model(&models.AutoRunLog{}).Where("run_date = ?", runDate).Updates(map[string]interface{}{
		"invoices_created":        log.InvoicesCreated,
		"invoices_skipped":        log.InvoicesSkipped,
		"past_due_marked":         log.PastDueMarked,
		"dunning_processed":       log.DunningProcessed,
		"memberships_suspended":   log.MembershipsSuspended,
		"cancellations_processed": log.CancellationsProcessed,
		"trial_passes_expired":    log.TrialPassesExpired,
		"stage_errors":            log.StageErrors,
		"finished_at":             &now,
	}).Error
}

// ScheduledCancellations returns memberships whose requested cancellation has
// become effective and that have not been closed out yet.
func (r *gormRepository) ScheduledCancellations(now time.Time) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.
		Preload("Member").
		Where("status IN ?", []string{models.MembershipStatusActive, models.MembershipStatusPaused}).
		Where("cancellation_effective_date IS NOT NULL AND cancellation_effective_date <= ?", now).
		Find(&memberships).Error
	return memberships, err
}

func (r *gormRepository) CancelMembership(id uint, endDate time.Time) error {
	return r.db.Model(&models.Membership{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            models.MembershipStatusCanceled,
		"end_date":          &endDate,
		"next_payment_date": nil,
	}).Error
}

func (r *gormRepository) ExpiredTrialPasses(now time.Time) ([]models.TrialPass, error) {
	var passes []models.TrialPass
	err := r.db.
		Where("status = ? AND expires_at <= ?", models.TrialPassStatusActive, now).
		Find(&passes).Error
	return passes, err
}

func (r *gormRepository) ExpireTrialPass(id uint) error {
	return r.db.Model(&models.TrialPass{}).Where("id = ?", id).
		Update("status", models.TrialPassStatusExpired).Error
}

func (r *gormRepository) MemberByID(id uint) (*models.Member, error) {
	var member models.Member
	if err := r.db.First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}
