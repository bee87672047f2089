package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tradedesk-app/tradedesk-backend/api/responses"
	"github.com/tradedesk-app/tradedesk-backend/api/validators"
	"github.com/tradedesk-app/tradedesk-backend/internal/settlement"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

type completeCalloutBody struct {
	TotalCollected string  `json:"total_collected" validate:"required"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// StartCallout marks the assigned callout as underway. Only the winning
// partner can start work.
func StartCallout(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		actor, _, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		calloutID, err := calloutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		callout, err := svc.Start(r.Context(), settlement.StartInput{
			CalloutID: calloutID,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, callout)
	}
}

// CompleteCallout settles the job: records the collected total and splits
// out the platform fee from the partner's earnings.
func CompleteCallout(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		actor, _, err := partnerActorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		calloutID, err := calloutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body completeCalloutBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		total, err := decimal.NewFromString(strings.TrimSpace(body.TotalCollected))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid total_collected"))
			return
		}

		result, err := svc.Complete(r.Context(), settlement.CompleteInput{
			CalloutID:      calloutID,
			TotalCollected: total,
			Notes:          body.Notes,
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
