package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// CalloutResponse tracks one invited partner's standing against one callout.
// A partial unique index (ux_callout_responses_selected) limits each callout
// to at most one row with status 'selected'.
type CalloutResponse struct {
	ID                     uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CalloutID              uuid.UUID            `gorm:"column:callout_id;type:uuid;not null;uniqueIndex:ux_callout_responses_callout_partner" json:"callout_id"`
	PartnerID              uuid.UUID            `gorm:"column:partner_id;type:uuid;not null;uniqueIndex:ux_callout_responses_callout_partner" json:"partner_id"`
	Status                 enums.ResponseStatus `gorm:"column:status;type:callout_response_status;not null;default:pending" json:"status"`
	ProposedArrivalMinutes *int                 `gorm:"column:proposed_arrival_minutes" json:"proposed_arrival_minutes,omitempty"`
	ResponseNotes          *string              `gorm:"column:response_notes;type:text" json:"response_notes,omitempty"`
	DeclineReason          *string              `gorm:"column:decline_reason;type:text" json:"decline_reason,omitempty"`
	AcknowledgedAt         *time.Time           `gorm:"column:acknowledged_at;type:timestamptz" json:"acknowledged_at,omitempty"`
	RespondedAt            *time.Time           `gorm:"column:responded_at;type:timestamptz" json:"responded_at,omitempty"`
	DeclinedAt             *time.Time           `gorm:"column:declined_at;type:timestamptz" json:"declined_at,omitempty"`
	CreatedAt              time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Callout *Callout `gorm:"foreignKey:CalloutID;references:ID" json:"callout,omitempty"`
}
