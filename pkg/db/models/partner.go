package models

import (
	"time"

	"github.com/google/uuid"
)

// Partner is an external trade business registered for dispatch. The partner
// registry module owns onboarding; the engine reads eligibility only.
type Partner struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BusinessName      string    `gorm:"column:business_name;type:text;not null" json:"business_name"`
	ContactName       string    `gorm:"column:contact_name;type:text;not null" json:"contact_name"`
	Phone             string    `gorm:"column:phone;type:text;not null" json:"phone"`
	Email             string    `gorm:"column:email;type:text;not null" json:"email"`
	Active            bool      `gorm:"column:active;not null;default:true" json:"active"`
	EmergencyEligible bool      `gorm:"column:emergency_eligible;not null;default:false" json:"emergency_eligible"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
