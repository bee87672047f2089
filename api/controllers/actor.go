package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/api/middleware"
	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
)

// actorFromRequest extracts the authenticated caller seeded by the auth
// middleware. Partner ID is optional; operator tokens never carry one.
func actorFromRequest(r *http.Request) (callouts.Actor, error) {
	raw := middleware.ActorIDFromContext(r.Context())
	if raw == "" {
		return callouts.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return callouts.Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}

	actor := callouts.Actor{
		ActorID: actorID,
		Role:    middleware.RoleFromContext(r.Context()),
	}
	if rawPartner := middleware.PartnerIDFromContext(r.Context()); rawPartner != "" {
		partnerID, err := uuid.Parse(rawPartner)
		if err != nil {
			return callouts.Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partner id")
		}
		actor.PartnerID = &partnerID
	}
	return actor, nil
}

// partnerActorFromRequest additionally requires a partner context.
func partnerActorFromRequest(r *http.Request) (callouts.Actor, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return callouts.Actor{}, uuid.Nil, err
	}
	if actor.PartnerID == nil {
		return callouts.Actor{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "partner context missing")
	}
	return actor, *actor.PartnerID, nil
}
