package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalresponses "github.com/tradedesk-app/tradedesk-backend/internal/responses"

	"github.com/tradedesk-app/tradedesk-backend/api/responses"
	"github.com/tradedesk-app/tradedesk-backend/api/validators"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

type respondBody struct {
	ETAMinutes int     `json:"eta_minutes" validate:"required,min=1,max=1440"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type declineBody struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ListMyResponses is the partner poll endpoint for invites and their state.
func ListMyResponses(svc internalresponses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "responses service unavailable"))
			return
		}

		_, partnerID, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalresponses.ListParams{
			PartnerID: partnerID,
			Limit:     limit,
			Cursor:    strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("activeOnly")); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid activeOnly value"))
				return
			}
			params.ActiveOnly = value
		}

		list, err := svc.ListMine(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AcknowledgeResponse confirms the partner has seen the invite.
func AcknowledgeResponse(svc internalresponses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "responses service unavailable"))
			return
		}

		actor, partnerID, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responseID, err := responseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Acknowledge(r.Context(), internalresponses.ActionInput{
			ResponseID: responseID,
			ActorID:    actor.ActorID,
			PartnerID:  partnerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// RespondToCallout records the partner's competing ETA bid.
func RespondToCallout(svc internalresponses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "responses service unavailable"))
			return
		}

		actor, partnerID, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responseID, err := responseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body respondBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Respond(r.Context(), internalresponses.RespondInput{
			ResponseID: responseID,
			ActorID:    actor.ActorID,
			PartnerID:  partnerID,
			ETAMinutes: body.ETAMinutes,
			Notes:      body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// DeclineResponse lets the partner bow out of an invite.
func DeclineResponse(svc internalresponses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "responses service unavailable"))
			return
		}

		actor, partnerID, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responseID, err := responseIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body declineBody
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		row, err := svc.Decline(r.Context(), internalresponses.DeclineInput{
			ResponseID: responseID,
			ActorID:    actor.ActorID,
			PartnerID:  partnerID,
			Reason:     body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func responseIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "responseId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "response id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid response id")
	}
	return id, nil
}
