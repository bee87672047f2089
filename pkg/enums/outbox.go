package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCallout         OutboxAggregateType = "callout"
	AggregateCalloutResponse OutboxAggregateType = "callout_response"
	AggregateJob             OutboxAggregateType = "job"
	AggregateNotification    OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCallout,
	AggregateCalloutResponse,
	AggregateJob,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventCalloutBroadcast      OutboxEventType = "callout_broadcast"
	EventCalloutAssigned       OutboxEventType = "callout_assigned"
	EventCalloutResolved       OutboxEventType = "callout_resolved"
	EventCalloutCancelled      OutboxEventType = "callout_cancelled"
	EventResponseAcknowledged  OutboxEventType = "response_acknowledged"
	EventResponseSubmitted     OutboxEventType = "response_submitted"
	EventResponseDeclined      OutboxEventType = "response_declined"
	EventResponseExpired       OutboxEventType = "response_expired"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCalloutBroadcast,
	EventCalloutAssigned,
	EventCalloutResolved,
	EventCalloutCancelled,
	EventResponseAcknowledged,
	EventResponseSubmitted,
	EventResponseDeclined,
	EventResponseExpired,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason enum in Postgres.
type OutboxDLQErrorReason string

const (
	DLQReasonDecodeFailure  OutboxDLQErrorReason = "decode_failure"
	DLQReasonPublishFailure OutboxDLQErrorReason = "publish_failure"
	DLQReasonMaxAttempts    OutboxDLQErrorReason = "max_attempts_exceeded"
)

var validDLQReasons = []OutboxDLQErrorReason{
	DLQReasonDecodeFailure,
	DLQReasonPublishFailure,
	DLQReasonMaxAttempts,
}

// IsValid reports whether the value is a recognised DLQ reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validDLQReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
