package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records processed payment-provider event IDs so webhook
// redelivery is a no-op. Rows are only ever inserted.
type WebhookEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID   string    `gorm:"not null;size:255;uniqueIndex" json:"event_id"`
	Type      string    `gorm:"size:100" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
