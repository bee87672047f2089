package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// Job is the billable work record created when a callout is assigned. The
// wider jobs module owns its later lifecycle; the dispatch engine only
// creates and links it.
type Job struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PartnerID      uuid.UUID          `gorm:"column:partner_id;type:uuid;not null" json:"partner_id"`
	ClientName     string             `gorm:"column:client_name;type:text;not null" json:"client_name"`
	ClientPhone    string             `gorm:"column:client_phone;type:text;not null" json:"client_phone"`
	ClientAddress  string             `gorm:"column:client_address;type:text;not null" json:"client_address"`
	ClientPostcode string             `gorm:"column:client_postcode;type:text;not null" json:"client_postcode"`
	IncidentType   enums.IncidentType `gorm:"column:incident_type;type:incident_type;not null" json:"incident_type"`
	Description    *string            `gorm:"column:description;type:text" json:"description,omitempty"`
	Source         string             `gorm:"column:source;type:text;not null;default:emergency_callout" json:"source"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
