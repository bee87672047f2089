package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tradedesk-app/tradedesk-backend/api/responses"
	pkgAuth "github.com/tradedesk-app/tradedesk-backend/pkg/auth"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

// Auth validates the bearer token and seeds the request context with
// actor id, role and partner id for downstream handlers.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if !claims.Role.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown actor role"))
				return
			}
			if claims.Role == enums.ActorRolePartner && claims.PartnerID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "partner token missing partner id"))
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), logg, claims)))
		}
		return http.HandlerFunc(fn)
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[len("bearer "):])
	}
	return raw
}

func contextWithClaims(ctx context.Context, logg *logger.Logger, claims *pkgAuth.AccessTokenClaims) context.Context {
	ctx = context.WithValue(ctx, ctxActorID, claims.ActorID.String())
	ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
	if claims.PartnerID != nil {
		ctx = context.WithValue(ctx, ctxPartnerID, claims.PartnerID.String())
	}

	if logg == nil {
		return ctx
	}
	fields := map[string]any{
		"actor_id":   claims.ActorID.String(),
		"actor_role": string(claims.Role),
	}
	if claims.PartnerID != nil {
		fields["partner_id"] = claims.PartnerID.String()
	}
	return logg.WithFields(ctx, fields)
}
