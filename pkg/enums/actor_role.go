package enums

import "fmt"

// ActorRole identifies who is calling the dispatch engine.
type ActorRole string

const (
	ActorRoleOperator ActorRole = "operator"
	ActorRolePartner  ActorRole = "partner"
)

var validActorRoles = []ActorRole{
	ActorRoleOperator,
	ActorRolePartner,
}

// IsValid reports whether the value is a recognised actor role.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
