package models

import "time"

// Well-known setting keys consumed by the billing core.
const (
	SettingKeyActiveGateway      = "active_payment_gateway"
	SettingKeyAutoBilling        = "billing_auto_generate"
	SettingKeyDunningEnabled     = "dunning_enabled"
	SettingKeyDunningMaxRetries  = "dunning_max_retries"
	SettingKeyGracePeriodDays    = "billing_grace_period_days"
	SettingKeyBusinessTimezone   = "business_timezone"
	SettingKeyPortalStoreEnabled = "portal_store_enabled"
)

// Setting represents a system setting row.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null;default:'string'" json:"type"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
