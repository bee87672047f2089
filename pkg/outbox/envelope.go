package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced an event. PartnerID is only set for
// partner-initiated actions.
type ActorRef struct {
	ActorID   uuid.UUID  `json:"actorId"`
	PartnerID *uuid.UUID `json:"partnerId,omitempty"`
	Role      string     `json:"role,omitempty"`
}

// PayloadEnvelope is the versioned wire shape stored in outbox_events
// and published verbatim. Data stays raw so consumers decode it against
// the event type.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
