package enums

import "fmt"

// IncidentType maps to the incident_type enum in Postgres.
type IncidentType string

const (
	IncidentTypeLeak       IncidentType = "leak"
	IncidentTypeElectrical IncidentType = "electrical"
	IncidentTypeLockout    IncidentType = "lockout"
	IncidentTypeHeating    IncidentType = "heating"
	IncidentTypeDrainage   IncidentType = "drainage"
	IncidentTypeGlazing    IncidentType = "glazing"
	IncidentTypeRoofing    IncidentType = "roofing"
	IncidentTypeOther      IncidentType = "other"
)

var validIncidentTypes = []IncidentType{
	IncidentTypeLeak,
	IncidentTypeElectrical,
	IncidentTypeLockout,
	IncidentTypeHeating,
	IncidentTypeDrainage,
	IncidentTypeGlazing,
	IncidentTypeRoofing,
	IncidentTypeOther,
}

// IsValid reports whether the value matches the canonical incident_type enum.
func (i IncidentType) IsValid() bool {
	for _, candidate := range validIncidentTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIncidentType converts raw input into IncidentType.
func ParseIncidentType(value string) (IncidentType, error) {
	for _, candidate := range validIncidentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid incident type %q", value)
}
