package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	InviteStatusPending  = "pending"
	InviteStatusRedeemed = "redeemed"
)

// Invite is a single-use (or limited-use) registration code. Redemption is
// gated by status=pending, uses<max_uses and the optional expiry.
type Invite struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string     `gorm:"not null;size:64;uniqueIndex" json:"code"`
	IssuedToEmail string     `gorm:"size:255;index" json:"issued_to_email"`
	AffiliateID   *uuid.UUID `gorm:"type:uuid" json:"affiliate_id"`
	EnquiryID     string     `gorm:"size:64" json:"enquiry_id"`
	Status        string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	Uses          int        `gorm:"not null;default:0" json:"uses"`
	MaxUses       int        `gorm:"not null;default:1" json:"max_uses"`
	ExpiresAt     *time.Time `json:"expires_at"`
	RedeemedAt    *time.Time `json:"redeemed_at"`
	CustomerID    *uuid.UUID `gorm:"type:uuid" json:"customer_id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Redeemable reports whether the invite can still be redeemed at t.
func (i *Invite) Redeemable(t time.Time) bool {
	if i.Status != InviteStatusPending {
		return false
	}
	if i.Uses >= i.MaxUses {
		return false
	}
	if i.ExpiresAt != nil && !t.Before(*i.ExpiresAt) {
		return false
	}
	return true
}
