package callouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
)

// BroadcastInput carries the operator-submitted incident plus the invited
// partner set.
type BroadcastInput struct {
	ClientName     string
	ClientPhone    string
	ClientAddress  string
	ClientPostcode string
	IncidentType   enums.IncidentType
	Priority       enums.CalloutPriority
	Description    *string
	PartnerIDs     []uuid.UUID
	Actor          Actor
}

// CancelInput withdraws an open callout.
type CancelInput struct {
	CalloutID uuid.UUID
	Reason    string
	Actor     Actor
}

// Actor identifies the authenticated caller for audit events.
type Actor struct {
	ActorID   uuid.UUID
	Role      string
	PartnerID *uuid.UUID
}

// Ref builds the outbox actor reference.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{
		ActorID:   a.ActorID,
		PartnerID: a.PartnerID,
		Role:      a.Role,
	}
}

// ListFilters describe the inputs supported by the operator callout list.
type ListFilters struct {
	Status       *enums.CalloutStatus
	IncidentType *enums.IncidentType
	DateFrom     *time.Time
	DateTo       *time.Time
}

// ListParams configures pagination for the callout list.
type ListParams struct {
	Limit   int
	Cursor  string
	Filters ListFilters
}

// CalloutSummary is one row in the operator list view.
type CalloutSummary struct {
	ID             uuid.UUID             `json:"id"`
	ClientName     string                `json:"client_name"`
	ClientPostcode string                `json:"client_postcode"`
	IncidentType   enums.IncidentType    `json:"incident_type"`
	Priority       enums.CalloutPriority `json:"priority"`
	Status         enums.CalloutStatus   `json:"status"`
	BroadcastAt    time.Time             `json:"broadcast_at"`
	ResponseCount  int                   `json:"response_count"`
	RespondedCount int                   `json:"responded_count"`
	CreatedAt      time.Time             `json:"created_at"`
}

// ListResult wraps a page of callouts plus the cursor for the next page.
type ListResult struct {
	Items  []CalloutSummary `json:"items"`
	Cursor string           `json:"cursor"`
}

// BroadcastResult returns the created callout and its fan-out size.
type BroadcastResult struct {
	Callout       *models.Callout `json:"callout"`
	ResponseCount int             `json:"response_count"`
}
