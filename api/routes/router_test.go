package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/internal/notifications"
	"github.com/tradedesk-app/tradedesk-backend/internal/partners"
	internalresponses "github.com/tradedesk-app/tradedesk-backend/internal/responses"
	"github.com/tradedesk-app/tradedesk-backend/internal/selection"
	"github.com/tradedesk-app/tradedesk-backend/internal/settlement"
	pkgAuth "github.com/tradedesk-app/tradedesk-backend/pkg/auth"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCalloutsService struct{}

func (stubCalloutsService) Broadcast(ctx context.Context, input callouts.BroadcastInput) (*callouts.BroadcastResult, error) {
	return &callouts.BroadcastResult{}, nil
}

func (stubCalloutsService) Cancel(ctx context.Context, input callouts.CancelInput) (*models.Callout, error) {
	return &models.Callout{}, nil
}

func (stubCalloutsService) List(ctx context.Context, params callouts.ListParams) (*callouts.ListResult, error) {
	return &callouts.ListResult{}, nil
}

func (stubCalloutsService) Get(ctx context.Context, calloutID uuid.UUID) (*models.Callout, error) {
	return &models.Callout{}, nil
}

type stubResponsesService struct{}

func (stubResponsesService) Acknowledge(ctx context.Context, input internalresponses.ActionInput) (*models.CalloutResponse, error) {
	return &models.CalloutResponse{}, nil
}

func (stubResponsesService) Respond(ctx context.Context, input internalresponses.RespondInput) (*models.CalloutResponse, error) {
	return &models.CalloutResponse{}, nil
}

func (stubResponsesService) Decline(ctx context.Context, input internalresponses.DeclineInput) (*models.CalloutResponse, error) {
	return &models.CalloutResponse{}, nil
}

func (stubResponsesService) ListMine(ctx context.Context, params internalresponses.ListParams) (*internalresponses.ListResult, error) {
	return &internalresponses.ListResult{}, nil
}

type stubSelectionService struct{}

func (stubSelectionService) Select(ctx context.Context, input selection.SelectInput) (*selection.SelectResult, error) {
	return &selection.SelectResult{}, nil
}

type stubSettlementService struct{}

func (stubSettlementService) Start(ctx context.Context, input settlement.StartInput) (*models.Callout, error) {
	return &models.Callout{}, nil
}

func (stubSettlementService) Complete(ctx context.Context, input settlement.CompleteInput) (*settlement.SettlementResult, error) {
	return &settlement.SettlementResult{}, nil
}

type stubPartnersService struct{}

func (stubPartnersService) List(ctx context.Context, params partners.ListParams) (*partners.ListResult, error) {
	return &partners.ListResult{}, nil
}

func (stubPartnersService) Get(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
	return &models.Partner{}, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		nil, // redis client
		stubCalloutsService{},
		stubResponsesService{},
		stubSelectionService{},
		stubSettlementService{},
		stubPartnersService{},
		stubNotificationsService{},
	)
}

func buildOperatorToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID: uuid.New(),
		Role:    enums.ActorRoleOperator,
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}
	return token
}

func buildPartnerToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	partnerID := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID:   uuid.New(),
		Role:      enums.ActorRolePartner,
		PartnerID: &partnerID,
	})
	if err != nil {
		t.Fatalf("mint partner token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPublicPingRequiresNoAuth(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestProtectedGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestOperatorPingRequiresOperatorRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	partner := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	partner.Header.Set("Authorization", "Bearer "+buildPartnerToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, partner)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for partner got %d", resp.Code)
	}

	operator := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	operator.Header.Set("Authorization", "Bearer "+buildOperatorToken(t, cfg))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, operator)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator got %d", resp.Code)
	}
}

func TestCalloutListRequiresOperatorRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	partner := httptest.NewRequest(http.MethodGet, "/api/v1/callouts", nil)
	partner.Header.Set("Authorization", "Bearer "+buildPartnerToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, partner)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for partner got %d", resp.Code)
	}

	operator := httptest.NewRequest(http.MethodGet, "/api/v1/callouts", nil)
	operator.Header.Set("Authorization", "Bearer "+buildOperatorToken(t, cfg))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, operator)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator got %d", resp.Code)
	}
}

func TestMyResponsesRequiresPartnerRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	operator := httptest.NewRequest(http.MethodGet, "/api/v1/responses/mine", nil)
	operator.Header.Set("Authorization", "Bearer "+buildOperatorToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, operator)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator got %d", resp.Code)
	}

	partner := httptest.NewRequest(http.MethodGet, "/api/v1/responses/mine", nil)
	partner.Header.Set("Authorization", "Bearer "+buildPartnerToken(t, cfg))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, partner)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for partner got %d", resp.Code)
	}
}

func TestNotificationsOpenToBothRoles(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	for name, token := range map[string]string{
		"operator": buildOperatorToken(t, cfg),
		"partner":  buildPartnerToken(t, cfg),
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", name, resp.Code)
		}
	}
}

func TestBroadcastRouteSurvivesNilRedisWithRateLimitsOn(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{
		BroadcastWindow:     time.Minute,
		BroadcastIPLimit:    5,
		BroadcastActorLimit: 5,
	}
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildOperatorToken(t, cfg))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	// Without a limiter store the policy is skipped and the request reaches
	// the controller, which rejects the empty payload. A 500 here means the
	// limiter dereferenced a nil client.
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
