package models

import "time"

const (
	TrialPassStatusActive    = "ACTIVE"
	TrialPassStatusExpired   = "EXPIRED"
	TrialPassStatusConverted = "CONVERTED"
)

// TrialPass grants a prospect limited class access before buying a
// membership. Expiry is swept by the daily auto-run.
type TrialPass struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	MemberID    uint       `gorm:"not null;index" json:"member_id"`
	ClassCount  int        `gorm:"not null;default:0" json:"class_count"`
	ClassLimit  int        `gorm:"not null;default:0" json:"class_limit"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	Status      string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	ConvertedAt *time.Time `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
