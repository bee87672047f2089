package enums

import "fmt"

// CalloutPriority maps to the callout_priority enum in Postgres.
type CalloutPriority string

const (
	CalloutPriorityLow      CalloutPriority = "low"
	CalloutPriorityMedium   CalloutPriority = "medium"
	CalloutPriorityHigh     CalloutPriority = "high"
	CalloutPriorityCritical CalloutPriority = "critical"
)

var validCalloutPriorities = []CalloutPriority{
	CalloutPriorityLow,
	CalloutPriorityMedium,
	CalloutPriorityHigh,
	CalloutPriorityCritical,
}

// IsValid reports whether the value matches the canonical callout_priority enum.
func (p CalloutPriority) IsValid() bool {
	for _, candidate := range validCalloutPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseCalloutPriority converts raw input into CalloutPriority.
func ParseCalloutPriority(value string) (CalloutPriority, error) {
	for _, candidate := range validCalloutPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid callout priority %q", value)
}
