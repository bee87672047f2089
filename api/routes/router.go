package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradedesk-app/tradedesk-backend/api/controllers"
	"github.com/tradedesk-app/tradedesk-backend/api/middleware"
	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/internal/notifications"
	"github.com/tradedesk-app/tradedesk-backend/internal/partners"
	internalresponses "github.com/tradedesk-app/tradedesk-backend/internal/responses"
	"github.com/tradedesk-app/tradedesk-backend/internal/selection"
	"github.com/tradedesk-app/tradedesk-backend/internal/settlement"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	calloutsService callouts.Service,
	responsesService internalresponses.Service,
	selectionService selection.Service,
	settlementService settlement.Service,
	partnersService partners.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	broadcastPolicy := middleware.NewRateLimitPolicy(
		"broadcast",
		cfg.RateLimit.BroadcastWindow,
		cfg.RateLimit.BroadcastIPLimit,
		cfg.RateLimit.BroadcastActorLimit,
	)
	respondPolicy := middleware.NewRateLimitPolicy(
		"respond",
		cfg.RateLimit.RespondWindow,
		cfg.RateLimit.RespondIPLimit,
		cfg.RateLimit.RespondActorLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// A nil *redis.Client must become a nil interface, not a typed nil.
	var idemStore redis.IdempotencyStore
	var limiterStore middleware.RateLimiterStore
	if redisClient != nil {
		idemStore = redisClient
		limiterStore = redisClient
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		operatorOnly := middleware.RequireRole(string(enums.ActorRoleOperator), logg)
		partnerOnly := middleware.RequireRole(string(enums.ActorRolePartner), logg)
		partnerCtx := middleware.PartnerContext(logg)

		r.With(operatorOnly).Get("/ping", controllers.OperatorPing())
		r.With(partnerOnly, partnerCtx).Get("/partner/ping", controllers.PartnerPing())

		// The callout lifecycle spans both roles: operators broadcast and
		// arbitrate, the winning partner starts and completes the work.
		r.Route("/callouts", func(r chi.Router) {
			r.With(operatorOnly, middleware.RateLimit(broadcastPolicy, limiterStore, logg)).
				Post("/", controllers.BroadcastCallout(calloutsService, logg))
			r.With(operatorOnly).Get("/", controllers.ListCallouts(calloutsService, logg))
			r.With(operatorOnly).Get("/{calloutId}", controllers.GetCallout(calloutsService, logg))
			r.With(operatorOnly).Post("/{calloutId}/select", controllers.SelectWinner(selectionService, logg))
			r.With(operatorOnly).Post("/{calloutId}/cancel", controllers.CancelCallout(calloutsService, logg))
			r.With(partnerOnly, partnerCtx).Post("/{calloutId}/start", controllers.StartCallout(settlementService, logg))
			r.With(partnerOnly, partnerCtx).Post("/{calloutId}/complete", controllers.CompleteCallout(settlementService, logg))
		})

		r.Route("/partners", func(r chi.Router) {
			r.Use(operatorOnly)
			r.Get("/", controllers.ListPartners(partnersService, logg))
			r.Get("/{partnerId}", controllers.GetPartner(partnersService, logg))
		})

		r.Route("/responses", func(r chi.Router) {
			r.Use(partnerOnly, partnerCtx)
			r.Get("/mine", controllers.ListMyResponses(responsesService, logg))
			r.Post("/{responseId}/acknowledge", controllers.AcknowledgeResponse(responsesService, logg))
			r.With(middleware.RateLimit(respondPolicy, limiterStore, logg)).
				Post("/{responseId}/respond", controllers.RespondToCallout(responsesService, logg))
			r.Post("/{responseId}/decline", controllers.DeclineResponse(responsesService, logg))
		})

		// Either role can read its own inbox.
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
