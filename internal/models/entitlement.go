package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TierMaker      = "maker"
	TierPro        = "pro"
	TierEducation  = "education"
	TierEnterprise = "enterprise"
)

const (
	EntitlementStatusActive   = "active"
	EntitlementStatusInactive = "inactive"
	EntitlementStatusExpired  = "expired"
	EntitlementStatusCanceled = "canceled"
)

const (
	EntitlementSourceSubscription    = "subscription"
	EntitlementSourceLegacyPurchase  = "legacy_purchase"
	EntitlementSourceLegacyMigration = "legacy_migration"
)

// Entitlement is the unified record of what a customer currently holds,
// independent of which legacy license key or payment produced it. Post-dedup
// a customer carries at most one non-archived entitlement per tier.
type Entitlement struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_entitlements_customer_tier" json:"customer_id"`
	Tier         string     `gorm:"size:20;not null;index:idx_entitlements_customer_tier" json:"tier"`
	LicenseKeyID *uuid.UUID `gorm:"type:uuid" json:"license_key_id"`
	PurchaseID   string     `gorm:"size:255" json:"purchase_id"`
	Status       string     `gorm:"size:20;not null;default:'active'" json:"status"`

	// IsLifetime marks a founders entitlement. Webhook-driven updates must
	// never flip it to false or set an expiry on the record.
	IsLifetime bool       `gorm:"not null;default:false" json:"is_lifetime"`
	ExpiresAt  *time.Time `json:"expires_at"`

	MaxDevices           int            `gorm:"not null;default:1" json:"max_devices"`
	Source               string         `gorm:"size:30;not null;default:'subscription'" json:"source"`
	StripeSubscriptionID string         `gorm:"size:255" json:"-"`
	IsArchived           bool           `gorm:"not null;default:false" json:"is_archived"`
	Metadata             datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`

	Customer   *Customer   `gorm:"foreignKey:CustomerID" json:"-"`
	LicenseKey *LicenseKey `gorm:"foreignKey:LicenseKeyID" json:"-"`
}
