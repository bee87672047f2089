package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID   uuid.UUID
	Role      enums.ActorRole
	PartnerID *uuid.UUID
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. Partner
// tokens always carry a partner_id; operator tokens never do.
type AccessTokenClaims struct {
	ActorID   uuid.UUID       `json:"actor_id"`
	Role      enums.ActorRole `json:"role"`
	PartnerID *uuid.UUID      `json:"partner_id,omitempty"`
	jwt.RegisteredClaims
}
