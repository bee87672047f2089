package controllers

import (
	"net/http"

	"github.com/tradedesk-app/tradedesk-backend/api/middleware"
	"github.com/tradedesk-app/tradedesk-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func OperatorPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "operator", "status": "ok"}
		if actor := middleware.ActorIDFromContext(r.Context()); actor != "" {
			payload["actor_id"] = actor
		}
		responses.WriteSuccess(w, payload)
	}
}

func PartnerPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "partner", "status": "ok"}
		if partner := middleware.PartnerIDFromContext(r.Context()); partner != "" {
			payload["partner_id"] = partner
		}
		responses.WriteSuccess(w, payload)
	}
}
