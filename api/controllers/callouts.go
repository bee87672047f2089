package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/api/responses"
	"github.com/tradedesk-app/tradedesk-backend/api/validators"
	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

type broadcastCalloutBody struct {
	ClientName     string   `json:"client_name" validate:"required,min=2,max=120"`
	ClientPhone    string   `json:"client_phone" validate:"required,min=7,max=32"`
	ClientAddress  string   `json:"client_address" validate:"required,min=5,max=255"`
	ClientPostcode string   `json:"client_postcode" validate:"required,min=3,max=12"`
	IncidentType   string   `json:"incident_type" validate:"required"`
	Priority       string   `json:"priority" validate:"required"`
	Description    *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	PartnerIDs     []string `json:"partner_ids" validate:"required,min=1,max=50,dive,uuid"`
}

type cancelCalloutBody struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// BroadcastCallout creates a callout and fans out invites to the named partners.
func BroadcastCallout(svc callouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callouts service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body broadcastCalloutBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		incident := enums.IncidentType(strings.ToLower(strings.TrimSpace(body.IncidentType)))
		if !incident.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown incident type").WithDetails(map[string]any{"incident_type": body.IncidentType}))
			return
		}
		priority := enums.CalloutPriority(strings.ToLower(strings.TrimSpace(body.Priority)))
		if !priority.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown priority").WithDetails(map[string]any{"priority": body.Priority}))
			return
		}

		partnerIDs := make([]uuid.UUID, 0, len(body.PartnerIDs))
		for _, raw := range body.PartnerIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partner id"))
				return
			}
			partnerIDs = append(partnerIDs, id)
		}

		input := callouts.BroadcastInput{
			ClientName:     validators.SanitizeString(body.ClientName, 120),
			ClientPhone:    validators.SanitizeString(body.ClientPhone, 32),
			ClientAddress:  validators.SanitizeString(body.ClientAddress, 255),
			ClientPostcode: strings.ToUpper(validators.SanitizeString(body.ClientPostcode, 12)),
			IncidentType:   incident,
			Priority:       priority,
			Description:    body.Description,
			PartnerIDs:     partnerIDs,
			Actor:          actor,
		}

		result, err := svc.Broadcast(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListCallouts returns the operator dashboard list with optional filters.
func ListCallouts(svc callouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callouts service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := callouts.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status := enums.CalloutStatus(strings.ToLower(raw))
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter"))
				return
			}
			params.Filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("incident_type")); raw != "" {
			incident := enums.IncidentType(strings.ToLower(raw))
			if !incident.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown incident type filter"))
				return
			}
			params.Filters.IncidentType = &incident
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("date_from")); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_from"))
				return
			}
			params.Filters.DateFrom = &from
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("date_to")); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_to"))
				return
			}
			params.Filters.DateTo = &to
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetCallout returns the full callout detail, responses included.
func GetCallout(svc callouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callouts service unavailable"))
			return
		}

		calloutID, err := calloutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		callout, err := svc.Get(r.Context(), calloutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, callout)
	}
}

// CancelCallout withdraws an open callout before any partner is selected.
func CancelCallout(svc callouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callouts service unavailable"))
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

		var body cancelCalloutBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		callout, err := svc.Cancel(r.Context(), callouts.CancelInput{
			CalloutID: calloutID,
			Reason:    validators.SanitizeString(body.Reason, 500),
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, callout)
	}
}

func calloutIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "calloutId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callout id")
	}
	return id, nil
}
