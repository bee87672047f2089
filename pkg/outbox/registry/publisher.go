// Package registry maps outbox event types to topics and payload
// schemas for the publisher and consumers.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, destination
// topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is a validated, decoded outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError tells the dispatcher to dead-letter the row
// instead of retrying it.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic
// names. Every supported event type must be registered here or the
// publisher dead-letters it as unsupported.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DispatchTopic == "" {
		return nil, fmt.Errorf("dispatch topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	calloutEvent := func(eventType enums.OutboxEventType, factory func() interface{}) {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateCallout,
			Topic:          cfg.DispatchTopic,
			PayloadFactory: factory,
		})
	}
	responseEvent := func(eventType enums.OutboxEventType, factory func() interface{}) {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateCalloutResponse,
			Topic:          cfg.DispatchTopic,
			PayloadFactory: factory,
		})
	}

	calloutEvent(enums.EventCalloutBroadcast, func() interface{} { return &payloads.CalloutBroadcastEvent{} })
	calloutEvent(enums.EventCalloutAssigned, func() interface{} { return &payloads.CalloutAssignedEvent{} })
	calloutEvent(enums.EventCalloutResolved, func() interface{} { return &payloads.CalloutResolvedEvent{} })
	calloutEvent(enums.EventCalloutCancelled, func() interface{} { return &payloads.CalloutCancelledEvent{} })

	responseEvent(enums.EventResponseAcknowledged, func() interface{} { return &payloads.ResponseAcknowledgedEvent{} })
	responseEvent(enums.EventResponseSubmitted, func() interface{} { return &payloads.ResponseSubmittedEvent{} })
	responseEvent(enums.EventResponseDeclined, func() interface{} { return &payloads.ResponseDeclinedEvent{} })
	responseEvent(enums.EventResponseExpired, func() interface{} { return &payloads.ResponseExpiredEvent{} })

	reg.register(EventDescriptor{
		EventType:      enums.EventNotificationRequested,
		AggregateType:  enums.AggregateNotification,
		Topic:          cfg.NotificationTopic,
		PayloadFactory: func() interface{} { return &payloads.NotificationRequestedEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row against its descriptor and decodes the
// typed payload. All failures here are permanent, so they come back as
// NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
