package enums

import "fmt"

// ResponseStatus maps to the callout_response_status enum in Postgres.
type ResponseStatus string

const (
	ResponseStatusPending      ResponseStatus = "pending"
	ResponseStatusAcknowledged ResponseStatus = "acknowledged"
	ResponseStatusResponded    ResponseStatus = "responded"
	ResponseStatusDeclined     ResponseStatus = "declined"
	ResponseStatusSelected     ResponseStatus = "selected"
	ResponseStatusNotSelected  ResponseStatus = "not_selected"
)

var validResponseStatuses = []ResponseStatus{
	ResponseStatusPending,
	ResponseStatusAcknowledged,
	ResponseStatusResponded,
	ResponseStatusDeclined,
	ResponseStatusSelected,
	ResponseStatusNotSelected,
}

// IsValid reports whether the value matches the canonical response status enum.
func (s ResponseStatus) IsValid() bool {
	for _, candidate := range validResponseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the partner can take no further action on the row.
func (s ResponseStatus) IsTerminal() bool {
	switch s {
	case ResponseStatusDeclined, ResponseStatusSelected, ResponseStatusNotSelected:
		return true
	default:
		return false
	}
}

// CanAcknowledge reports whether Acknowledge is permitted from this state.
// Acknowledging an already-acknowledged row is an idempotent no-op upstream.
func (s ResponseStatus) CanAcknowledge() bool {
	return s == ResponseStatusPending || s == ResponseStatusAcknowledged
}

// CanRespond reports whether an ETA submission is permitted from this state.
func (s ResponseStatus) CanRespond() bool {
	return s == ResponseStatusPending || s == ResponseStatusAcknowledged
}

// CanDecline reports whether a decline is permitted from this state.
func (s ResponseStatus) CanDecline() bool {
	return s == ResponseStatusPending || s == ResponseStatusAcknowledged
}

// ParseResponseStatus converts raw input into ResponseStatus.
func ParseResponseStatus(value string) (ResponseStatus, error) {
	for _, candidate := range validResponseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid response status %q", value)
}
