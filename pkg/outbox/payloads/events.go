package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// CalloutBroadcastEvent signals an urgent callout fanned out to partners.
type CalloutBroadcastEvent struct {
	CalloutID    uuid.UUID             `json:"callout_id"`
	IncidentType enums.IncidentType    `json:"incident_type"`
	Priority     enums.CalloutPriority `json:"priority"`
	PartnerIDs   []uuid.UUID           `json:"partner_ids"`
	BroadcastAt  time.Time             `json:"broadcast_at"`
}

// CalloutAssignedEvent is emitted when an operator picks the winning response.
// The not-selected lists name the demoted sibling responses and their
// partners so the losers can be told the callout is filled.
type CalloutAssignedEvent struct {
	CalloutID             uuid.UUID   `json:"callout_id"`
	ResponseID            uuid.UUID   `json:"response_id"`
	PartnerID             uuid.UUID   `json:"partner_id"`
	JobID                 uuid.UUID   `json:"job_id"`
	ArrivalMinutes        int         `json:"arrival_minutes"`
	NotSelectedIDs        []uuid.UUID `json:"not_selected_ids,omitempty"`
	NotSelectedPartnerIDs []uuid.UUID `json:"not_selected_partner_ids,omitempty"`
	AssignedAt            time.Time   `json:"assigned_at"`
}

// CalloutResolvedEvent carries the settlement figures when a job completes.
type CalloutResolvedEvent struct {
	CalloutID       uuid.UUID       `json:"callout_id"`
	JobID           uuid.UUID       `json:"job_id"`
	PartnerID       uuid.UUID       `json:"partner_id"`
	TotalCollected  decimal.Decimal `json:"total_collected"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	PartnerEarnings decimal.Decimal `json:"partner_earnings"`
	FeePercent      int64           `json:"fee_percent"`
	ResolvedAt      time.Time       `json:"resolved_at"`
}

// CalloutCancelledEvent is emitted when an open callout is withdrawn.
// PartnerIDs lists the partners whose responses were still live at
// cancellation time.
type CalloutCancelledEvent struct {
	CalloutID   uuid.UUID   `json:"callout_id"`
	PartnerIDs  []uuid.UUID `json:"partner_ids,omitempty"`
	CancelledAt time.Time   `json:"cancelled_at"`
	Reason      string      `json:"reason,omitempty"`
}

// ResponseAcknowledgedEvent records that a partner has seen the invite.
type ResponseAcknowledgedEvent struct {
	CalloutID      uuid.UUID `json:"callout_id"`
	ResponseID     uuid.UUID `json:"response_id"`
	PartnerID      uuid.UUID `json:"partner_id"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// ResponseSubmittedEvent records a partner's competing ETA bid.
type ResponseSubmittedEvent struct {
	CalloutID      uuid.UUID `json:"callout_id"`
	ResponseID     uuid.UUID `json:"response_id"`
	PartnerID      uuid.UUID `json:"partner_id"`
	ArrivalMinutes int       `json:"arrival_minutes"`
	RespondedAt    time.Time `json:"responded_at"`
}

// ResponseDeclinedEvent records a partner bowing out of a callout.
type ResponseDeclinedEvent struct {
	CalloutID  uuid.UUID `json:"callout_id"`
	ResponseID uuid.UUID `json:"response_id"`
	PartnerID  uuid.UUID `json:"partner_id"`
	Reason     string    `json:"reason,omitempty"`
	DeclinedAt time.Time `json:"declined_at"`
}

// ResponseExpiredEvent is emitted by the staleness sweeper for invites that
// never progressed past pending.
type ResponseExpiredEvent struct {
	CalloutID  uuid.UUID `json:"callout_id"`
	ResponseID uuid.UUID `json:"response_id"`
	PartnerID  uuid.UUID `json:"partner_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}

// NotificationRequestedEvent tells the notification consumer to surface an
// in-app alert for the recipient.
type NotificationRequestedEvent struct {
	RecipientID uuid.UUID              `json:"recipient_id"`
	CalloutID   uuid.UUID              `json:"callout_id"`
	Type        enums.NotificationType `json:"type"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
}
