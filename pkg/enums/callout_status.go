package enums

import "fmt"

// CalloutStatus maps to the callout_status enum in Postgres.
type CalloutStatus string

const (
	CalloutStatusOpen       CalloutStatus = "open"
	CalloutStatusAssigned   CalloutStatus = "assigned"
	CalloutStatusInProgress CalloutStatus = "in_progress"
	CalloutStatusResolved   CalloutStatus = "resolved"
	CalloutStatusCancelled  CalloutStatus = "cancelled"
)

var validCalloutStatuses = []CalloutStatus{
	CalloutStatusOpen,
	CalloutStatusAssigned,
	CalloutStatusInProgress,
	CalloutStatusResolved,
	CalloutStatusCancelled,
}

// calloutTransitions encodes the only lifecycle edges the engine permits:
// open -> assigned -> in_progress -> resolved, or open -> cancelled.
var calloutTransitions = map[CalloutStatus][]CalloutStatus{
	CalloutStatusOpen:       {CalloutStatusAssigned, CalloutStatusCancelled},
	CalloutStatusAssigned:   {CalloutStatusInProgress, CalloutStatusResolved},
	CalloutStatusInProgress: {CalloutStatusResolved},
}

// IsValid reports whether the value matches the canonical callout_status enum.
func (s CalloutStatus) IsValid() bool {
	for _, candidate := range validCalloutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s CalloutStatus) IsTerminal() bool {
	return s == CalloutStatusResolved || s == CalloutStatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving to target.
func (s CalloutStatus) CanTransitionTo(target CalloutStatus) bool {
	for _, candidate := range calloutTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// ParseCalloutStatus converts raw input into CalloutStatus.
func ParseCalloutStatus(value string) (CalloutStatus, error) {
	for _, candidate := range validCalloutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid callout status %q", value)
}
