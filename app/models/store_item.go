package models

import "time"

// StoreItem is sellable POS inventory (uniforms, gear, drinks). Stock is
// decremented with an atomic update when a paid cart materializes.
type StoreItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(150);not null" json:"name"`
	SKU           string    `gorm:"type:varchar(64);uniqueIndex" json:"sku"`
	PriceCents    int64     `gorm:"not null" json:"price_cents"`
	StockQuantity int       `gorm:"not null;default:0" json:"stock_quantity"`
	TrackStock    bool      `gorm:"default:true" json:"track_stock"`
	PortalVisible bool      `gorm:"default:false;index" json:"portal_visible"`
	IsActive      bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
