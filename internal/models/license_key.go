package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// License key types sold through checkout or seeded for trials.
const (
	LicenseTypeTrial      = "trial"
	LicenseTypeStarter    = "starter"
	LicenseTypePaid       = "paid"
	LicenseTypePro        = "pro"
	LicenseTypeEnterprise = "enterprise"
)

const (
	LicenseStatusUnused = "unused"
	LicenseStatusActive = "active"
)

// LicenseKey is a shareable product credential. At most one machine may hold
// an activation at a time: status=active always pairs with a non-empty JTI
// and hashed machine ID, and deactivation clears all three together.
type LicenseKey struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Key         string     `gorm:"not null;size:64;uniqueIndex" json:"key"`
	CustomerID  *uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	ProductName string     `gorm:"size:255" json:"product_name"`
	PriceID     string     `gorm:"size:255" json:"price_id"`
	Type        string     `gorm:"size:20;not null;default:'paid'" json:"type"`
	Status      string     `gorm:"size:20;not null;default:'unused'" json:"status"`

	// Hashed machine binding for the current activation. Machine IDs are
	// never persisted in clear.
	MachineID string  `gorm:"size:64" json:"-"`
	JTI       *string `gorm:"size:36" json:"-"`

	// Activated is the one-shot trial marker. It is set on first activation
	// and never cleared, so a trial key stays single-use across
	// deactivation cycles even though Status returns to unused.
	Activated bool `gorm:"not null;default:false" json:"activated"`

	TrialStart         *time.Time `json:"trial_start"`
	ActivatedAt        *time.Time `json:"activated_at"`
	DeactivatedAt      *time.Time `json:"deactivated_at"`
	ExpiresAt          *time.Time `json:"expires_at"`
	MaxActivations     int        `gorm:"not null;default:1" json:"max_activations"`
	CurrentActivations int        `gorm:"not null;default:0" json:"current_activations"`

	// ActivationCode is a short customer-facing code for manual entry in the
	// desktop client, rotated on demand from the portal.
	ActivationCode string `gorm:"size:32" json:"-"`

	SubscriptionID string         `gorm:"size:255" json:"-"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"-"`
}
