package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

// Customer is the account that owns license keys and entitlements.
type Customer struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email            string         `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Password         string         `gorm:"not null" json:"-"`
	FirstName        string         `gorm:"size:100" json:"first_name"`
	LastName         string         `gorm:"size:100" json:"last_name"`
	Role             string         `gorm:"size:20;default:'customer'" json:"role"`
	StripeCustomerID string         `gorm:"size:255;index" json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}
