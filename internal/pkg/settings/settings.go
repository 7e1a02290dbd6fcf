package settings

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/cache"
)

const cacheKeyPrefix = "setting:"
const cacheTTL = 5 * time.Minute

// Service reads and writes runtime settings (feature flags, gateway
// selection, business timezone). Reads go through the redis cache; a cache
// miss falls back to the settings table.
type Service struct {
	db       *gorm.DB
	useCache bool
}

// NewService creates a settings service. Pass useCache=false in tests that
// run without redis.
func NewService(db *gorm.DB, useCache bool) *Service {
	return &Service{db: db, useCache: useCache}
}

// GetString returns the raw value for key, or "" when the key is unset.
func (s *Service) GetString(key string) (string, error) {
	if s.useCache {
		if val, err := cache.Get(cacheKeyPrefix + key); err == nil {
			return val, nil
		}
	}

	var setting models.Setting
	err := s.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	if s.useCache {
		_ = cache.Set(cacheKeyPrefix+key, setting.Value, cacheTTL)
	}
	return setting.Value, nil
}

// GetBool interprets the stored value as a boolean, defaulting to def for
// unset or unparseable values.
func (s *Service) GetBool(key string, def bool) bool {
	val, err := s.GetString(key)
	if err != nil || val == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// GetInt interprets the stored value as an integer, defaulting to def.
func (s *Service) GetInt(key string, def int) int {
	val, err := s.GetString(key)
	if err != nil || val == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}

// Set writes a setting and invalidates its cache entry.
func (s *Service) Set(key, value string) error {
	var setting models.Setting
	err := s.db.Where("setting_key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.Setting{Key: key, Value: value}
		err = s.db.Create(&setting).Error
	} else if err == nil {
		setting.Value = value
		err = s.db.Save(&setting).Error
	}
	if err != nil {
		return err
	}

	if s.useCache {
		_ = cache.Delete(cacheKeyPrefix + key)
	}
	return nil
}

// ActiveGateway returns the configured payment provider ("" when payments
// are unconfigured; billing then degrades to invoice-only).
func (s *Service) ActiveGateway() string {
	val, err := s.GetString(models.SettingKeyActiveGateway)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(val))
}

// AutoBillingEnabled gates the invoice-generation stage of the daily run.
func (s *Service) AutoBillingEnabled() bool {
	return s.GetBool(models.SettingKeyAutoBilling, true)
}

// DunningEnabled gates the past-due sweep and retry stages.
func (s *Service) DunningEnabled() bool {
	return s.GetBool(models.SettingKeyDunningEnabled, true)
}

// MaxRetries is the dunning retry ceiling.
func (s *Service) MaxRetries() int {
	return s.GetInt(models.SettingKeyDunningMaxRetries, 4)
}

// GracePeriodDays is how long after the due date an invoice stays PENDING
// before it is marked past due.
func (s *Service) GracePeriodDays() int {
	return s.GetInt(models.SettingKeyGracePeriodDays, 0)
}

// BusinessTimezone resolves the studio's timezone; the daily-run idempotency
// day boundary is computed in it. Falls back to UTC on bad data.
func (s *Service) BusinessTimezone() *time.Location {
	val, err := s.GetString(models.SettingKeyBusinessTimezone)
	if err != nil || val == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(strings.TrimSpace(val))
	if err != nil {
		return time.UTC
	}
	return loc
}
