package responses

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

// stubRepo serves one response row and tracks the CAS updates applied to it.
// casHook runs before each CAS attempt so tests can interleave a concurrent
// writer between the service's read and its write.
type stubRepo struct {
	response      *models.CalloutResponse
	calloutStatus enums.CalloutStatus
	casUpdates    []map[string]any
	casHook       func()
	listFn        func(ctx context.Context, params listResponsesParams) ([]models.CalloutResponse, *pagination.Cursor, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error) {
	if s.response == nil || s.response.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.response
	return &copied, nil
}
func (s *stubRepo) FindCalloutStatus(ctx context.Context, calloutID uuid.UUID) (enums.CalloutStatus, error) {
	if s.calloutStatus == "" {
		return "", gorm.ErrRecordNotFound
	}
	return s.calloutStatus, nil
}
func (s *stubRepo) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, allowed []enums.ResponseStatus, next enums.ResponseStatus, updates map[string]any) (int64, error) {
	if s.casHook != nil {
		s.casHook()
	}
	if s.response == nil || s.response.ID != id {
		return 0, nil
	}
	// Mirrors the SQL guard: the write only lands while the callout is open.
	if s.calloutStatus != enums.CalloutStatusOpen {
		return 0, nil
	}
	for _, status := range allowed {
		if s.response.Status == status {
			s.response.Status = next
			s.casUpdates = append(s.casUpdates, updates)
			return 1, nil
		}
	}
	return 0, nil
}
func (s *stubRepo) ListStalePending(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]models.CalloutResponse, error) {
	return nil, nil
}
func (s *stubRepo) ExpirePending(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, now time.Time) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListByPartner(ctx context.Context, params listResponsesParams) ([]models.CalloutResponse, *pagination.Cursor, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil, nil
}

func newPendingRow(partnerID uuid.UUID) *models.CalloutResponse {
	return &models.CalloutResponse{
		ID:        uuid.New(),
		CalloutID: uuid.New(),
		PartnerID: partnerID,
		Status:    enums.ResponseStatusPending,
	}
}

func newResponseService(t *testing.T, repo Repository, publisher *stubOutbox) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, publisher)
	if err != nil {
		t.Fatalf("unexpected error building service: %v", err)
	}
	return svc
}

func TestAcknowledgePendingResponse(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}
	publisher := &stubOutbox{}

	svc := newResponseService(t, repo, publisher)
	out, err := svc.Acknowledge(context.Background(), ActionInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != enums.ResponseStatusAcknowledged {
		t.Fatalf("expected acknowledged, got %s", out.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventResponseAcknowledged {
		t.Fatalf("expected acknowledge event, got %+v", publisher.events)
	}
}

func TestAcknowledgeTwiceIsIdempotent(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}
	publisher := &stubOutbox{}

	svc := newResponseService(t, repo, publisher)
	input := ActionInput{ResponseID: repo.response.ID, ActorID: uuid.New(), PartnerID: partnerID}

	first, err := svc.Acknowledge(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error on first acknowledge: %v", err)
	}
	second, err := svc.Acknowledge(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error on second acknowledge: %v", err)
	}
	if first.Status != second.Status {
		t.Fatalf("statuses diverged: %s vs %s", first.Status, second.Status)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected a single event, got %d", len(publisher.events))
	}
}

func TestAcknowledgeForeignResponseRejected(t *testing.T) {
	repo := &stubRepo{response: newPendingRow(uuid.New()), calloutStatus: enums.CalloutStatusOpen}

	svc := newResponseService(t, repo, &stubOutbox{})
	_, err := svc.Acknowledge(context.Background(), ActionInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  uuid.New(),
	})
	if err == nil {
		t.Fatal("expected ownership error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeOwnership {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestRespondRequiresPositiveETA(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}

	svc := newResponseService(t, repo, &stubOutbox{})
	_, err := svc.Respond(context.Background(), RespondInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		ETAMinutes: 0,
	})
	if err == nil {
		t.Fatal("expected validation error for zero eta")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRespondRecordsETA(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}
	publisher := &stubOutbox{}

	svc := newResponseService(t, repo, publisher)
	out, err := svc.Respond(context.Background(), RespondInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		ETAMinutes: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != enums.ResponseStatusResponded {
		t.Fatalf("expected responded, got %s", out.Status)
	}
	if out.ProposedArrivalMinutes == nil || *out.ProposedArrivalMinutes != 30 {
		t.Fatal("eta not recorded")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventResponseSubmitted {
		t.Fatalf("expected submitted event, got %+v", publisher.events)
	}
}

func TestRespondAfterDeclineRejected(t *testing.T) {
	partnerID := uuid.New()
	row := newPendingRow(partnerID)
	row.Status = enums.ResponseStatusDeclined
	repo := &stubRepo{response: row, calloutStatus: enums.CalloutStatusOpen}

	svc := newResponseService(t, repo, &stubOutbox{})
	_, err := svc.Respond(context.Background(), RespondInput{
		ResponseID: row.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		ETAMinutes: 30,
	})
	if err == nil {
		t.Fatal("expected error responding after decline")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRespondAfterAssignmentRejected(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusAssigned}

	svc := newResponseService(t, repo, &stubOutbox{})
	_, err := svc.Respond(context.Background(), RespondInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		ETAMinutes: 30,
	})
	if err == nil {
		t.Fatal("expected error once callout assigned")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestRespondLosesToCancelCommittedAfterOpenCheck(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}
	// Cancel lands between the service's open check and its write.
	repo.casHook = func() { repo.calloutStatus = enums.CalloutStatusCancelled }
	publisher := &stubOutbox{}

	svc := newResponseService(t, repo, publisher)
	_, err := svc.Respond(context.Background(), RespondInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		ETAMinutes: 30,
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if repo.response.Status != enums.ResponseStatusPending {
		t.Fatalf("row must stay pending, got %s", repo.response.Status)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event may be emitted on a lost race, got %+v", publisher.events)
	}
}

func TestDeclineIsIdempotent(t *testing.T) {
	partnerID := uuid.New()
	repo := &stubRepo{response: newPendingRow(partnerID), calloutStatus: enums.CalloutStatusOpen}
	publisher := &stubOutbox{}
	reason := "on another job"

	svc := newResponseService(t, repo, publisher)
	input := DeclineInput{
		ResponseID: repo.response.ID,
		ActorID:    uuid.New(),
		PartnerID:  partnerID,
		Reason:     &reason,
	}

	first, err := svc.Decline(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error on first decline: %v", err)
	}
	if first.Status != enums.ResponseStatusDeclined {
		t.Fatalf("expected declined, got %s", first.Status)
	}
	second, err := svc.Decline(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error on repeat decline: %v", err)
	}
	if second.Status != enums.ResponseStatusDeclined {
		t.Fatalf("expected declined, got %s", second.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventResponseDeclined {
		t.Fatalf("expected a single decline event, got %+v", publisher.events)
	}
}

func TestListMineRequiresPartner(t *testing.T) {
	svc := newResponseService(t, &stubRepo{}, &stubOutbox{})
	_, err := svc.ListMine(context.Background(), ListParams{})
	if err == nil {
		t.Fatal("expected error when partner id missing")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListMineForwardsFilters(t *testing.T) {
	partnerID := uuid.New()
	captured := listResponsesParams{}
	repo := &stubRepo{
		listFn: func(ctx context.Context, params listResponsesParams) ([]models.CalloutResponse, *pagination.Cursor, error) {
			captured = params
			return []models.CalloutResponse{{ID: uuid.New(), PartnerID: partnerID}}, nil, nil
		},
	}

	svc := newResponseService(t, repo, &stubOutbox{})
	result, err := svc.ListMine(context.Background(), ListParams{
		PartnerID:  partnerID,
		Limit:      10,
		ActiveOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.PartnerID != partnerID || captured.Limit != 10 || !captured.ActiveOnly {
		t.Fatalf("filters not forwarded: %+v", captured)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected one row, got %d", len(result.Items))
	}
}
