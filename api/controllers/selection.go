package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/api/responses"
	"github.com/tradedesk-app/tradedesk-backend/api/validators"
	"github.com/tradedesk-app/tradedesk-backend/internal/selection"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

type selectWinnerBody struct {
	ResponseID string `json:"response_id" validate:"required,uuid"`
}

// SelectWinner assigns the callout to one responding partner. The losing
// siblings are demoted in the same transaction.
func SelectWinner(svc selection.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "selection service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		calloutID, err := calloutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body selectWinnerBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responseID, err := uuid.Parse(strings.TrimSpace(body.ResponseID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid response id"))
			return
		}

		result, err := svc.Select(r.Context(), selection.SelectInput{
			CalloutID:  calloutID,
			ResponseID: responseID,
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
