package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/api/middleware"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	routeCtx.URLParams.Add(key, value)
	return req
}

func withOperator(req *http.Request, actorID uuid.UUID) *http.Request {
	ctx := middleware.WithActorID(req.Context(), actorID.String())
	return req.WithContext(ctx)
}

func withPartner(req *http.Request, actorID, partnerID uuid.UUID) *http.Request {
	ctx := middleware.WithActorID(req.Context(), actorID.String())
	ctx = middleware.WithPartnerID(ctx, partnerID.String())
	return req.WithContext(ctx)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}
