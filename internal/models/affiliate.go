package models

import (
	"time"

	"github.com/google/uuid"
)

// Affiliate is a referral partner whose code can be attached to invites.
type Affiliate struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"not null;size:64;uniqueIndex" json:"code"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
