package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to a recipient
// (a partner id or the operator console's actor id).
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RecipientID uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null" json:"recipient_id"`
	Type        enums.NotificationType `gorm:"type:notification_type;not null" json:"type"`
	Title       string                 `gorm:"type:text;not null" json:"title"`
	Message     string                 `gorm:"type:text;not null" json:"message"`
	Link        *string                `gorm:"type:text" json:"link,omitempty"`
	ReadAt      *time.Time             `gorm:"type:timestamptz" json:"read_at,omitempty"`
	CreatedAt   time.Time              `gorm:"type:timestamptz;default:now()" json:"created_at"`
}
