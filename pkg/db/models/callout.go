package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// Callout is the durable record of one emergency incident. Rows are never
// deleted; terminal states close the audit trail.
type Callout struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientName     string                `gorm:"column:client_name;type:text;not null" json:"client_name"`
	ClientPhone    string                `gorm:"column:client_phone;type:text;not null" json:"client_phone"`
	ClientAddress  string                `gorm:"column:client_address;type:text;not null" json:"client_address"`
	ClientPostcode string                `gorm:"column:client_postcode;type:text;not null" json:"client_postcode"`
	IncidentType   enums.IncidentType    `gorm:"column:incident_type;type:incident_type;not null" json:"incident_type"`
	Priority       enums.CalloutPriority `gorm:"column:priority;type:callout_priority;not null" json:"priority"`
	Description    *string               `gorm:"column:description;type:text" json:"description,omitempty"`
	Status         enums.CalloutStatus   `gorm:"column:status;type:callout_status;not null;default:open" json:"status"`
	BroadcastAt    time.Time             `gorm:"column:broadcast_at;type:timestamptz;not null" json:"broadcast_at"`
	LinkedJobID    *uuid.UUID            `gorm:"column:linked_job_id;type:uuid" json:"linked_job_id,omitempty"`
	ResolvedAt     *time.Time            `gorm:"column:resolved_at;type:timestamptz" json:"resolved_at,omitempty"`
	CancelledAt    *time.Time            `gorm:"column:cancelled_at;type:timestamptz" json:"cancelled_at,omitempty"`

	// Settlement figures, populated once when the selected partner completes.
	TotalCollected  *decimal.Decimal `gorm:"column:total_collected;type:numeric(12,2)" json:"total_collected,omitempty"`
	FeePercent      *int64           `gorm:"column:fee_percent" json:"fee_percent,omitempty"`
	FeeAmount       *decimal.Decimal `gorm:"column:fee_amount;type:numeric(12,2)" json:"fee_amount,omitempty"`
	PartnerEarnings *decimal.Decimal `gorm:"column:partner_earnings;type:numeric(12,2)" json:"partner_earnings,omitempty"`
	CompletionNotes *string          `gorm:"column:completion_notes;type:text" json:"completion_notes,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Responses []CalloutResponse `gorm:"foreignKey:CalloutID" json:"responses,omitempty"`
}
