package models

import "time"

// AutoRunLog is the per-calendar-day marker for the daily automation run.
// RunDate is the business-timezone day in YYYY-MM-DD form; its uniqueness
// constraint is what makes the daily trigger idempotent under duplicate or
// overlapping cron invocations.
type AutoRunLog struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	RunDate                string     `gorm:"type:varchar(10);not null;uniqueIndex" json:"run_date"`
	InvoicesCreated        int        `gorm:"not null;default:0" json:"invoices_created"`
	InvoicesSkipped        int        `gorm:"not null;default:0" json:"invoices_skipped"`
	PastDueMarked          int        `gorm:"not null;default:0" json:"past_due_marked"`
	DunningProcessed       int        `gorm:"not null;default:0" json:"dunning_processed"`
	MembershipsSuspended   int        `gorm:"not null;default:0" json:"memberships_suspended"`
	CancellationsProcessed int        `gorm:"not null;default:0" json:"cancellations_processed"`
	TrialPassesExpired     int        `gorm:"not null;default:0" json:"trial_passes_expired"`
	StageErrors            string     `gorm:"type:text" json:"stage_errors"`
	StartedAt              time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt             *time.Time `gorm:"type:timestamp;default:null" json:"finished_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
