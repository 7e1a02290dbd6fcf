// Package statistics computes the studio overview figures shown on the admin
// dashboard. Results are cached in Redis so the dashboard never fans out into
// aggregate queries on every load.
package statistics

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/cache"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
)

const (
	cacheKeyActiveMemberships = "statistics:memberships:active"
	cacheKeyPastDueInvoices   = "statistics:invoices:pastdue"
	cacheKeyRevenueMonth      = "statistics:revenue:month"
	cacheKeyRevenueToday      = "statistics:revenue:today"
	cacheExpiration           = 30 * time.Minute
)

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// Overview is the aggregate snapshot for the admin dashboard.
type Overview struct {
	ActiveMemberships int64 `json:"active_memberships"`
	PastDueInvoices   int64 `json:"past_due_invoices"`
	MonthRevenueCents int64 `json:"month_revenue_cents"`
	TodayRevenueCents int64 `json:"today_revenue_cents"`
}

// GetOverview returns the cached snapshot, refreshing it from the database
// when the refresh interval has elapsed or the cache is cold.
func GetOverview(now time.Time) (Overview, error) {
	updateCacheIfNeeded(now)

	overview := Overview{
		ActiveMemberships: readCachedInt(cacheKeyActiveMemberships),
		PastDueInvoices:   readCachedInt(cacheKeyPastDueInvoices),
		MonthRevenueCents: readCachedInt(cacheKeyRevenueMonth),
		TodayRevenueCents: readCachedInt(cacheKeyRevenueToday),
	}
	return overview, nil
}

func updateCacheIfNeeded(now time.Time) {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	if time.Since(lastCacheUpdate) < cacheUpdateInterval {
		return
	}
	if err := refreshCache(now); err != nil {
		log.Printf("Error refreshing statistics cache: %v", err)
		return
	}
	lastCacheUpdate = time.Now()
}

// refreshCache recomputes every figure and writes it to Redis.
func refreshCache(now time.Time) error {
	db := database.GetDB()

	var activeMemberships int64
	if err := db.Model(&models.Membership{}).
		Where("status = ?", models.MembershipStatusActive).
		Count(&activeMemberships).Error; err != nil {
		return err
	}

	var pastDueInvoices int64
	if err := db.Model(&models.Invoice{}).
		Where("status = ?", models.InvoiceStatusPastDue).
		Count(&pastDueInvoices).Error; err != nil {
		return err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	monthRevenue, err := paidRevenueSince(monthStart)
	if err != nil {
		return err
	}
	todayRevenue, err := paidRevenueSince(dayStart)
	if err != nil {
		return err
	}

	writeCachedInt(cacheKeyActiveMemberships, activeMemberships)
	writeCachedInt(cacheKeyPastDueInvoices, pastDueInvoices)
	writeCachedInt(cacheKeyRevenueMonth, monthRevenue)
	writeCachedInt(cacheKeyRevenueToday, todayRevenue)
	return nil
}

// paidRevenueSince sums invoice revenue settled at or after the given instant.
func paidRevenueSince(since time.Time) (int64, error) {
	var total int64
	err := database.GetDB().Model(&models.Invoice{}).
		Where("status = ? AND paid_at >= ?", models.InvoiceStatusPaid, since).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func readCachedInt(key string) int64 {
	raw, err := cache.Get(key)
	if err != nil {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func writeCachedInt(key string, value int64) {
	if err := cache.Set(key, strconv.FormatInt(value, 10), cacheExpiration); err != nil {
		log.Printf("Error caching statistic %s: %v", key, err)
	}
}
