package selection

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/internal/jobs"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
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

type stubRepo struct {
	callout  *models.Callout
	response *models.CalloutResponse
	siblings []models.CalloutResponse

	assignAffected  int64
	promoteAffected int64

	assigned uuid.UUID
	promoted uuid.UUID
	demoted  bool
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) FindCallout(ctx context.Context, id uuid.UUID) (*models.Callout, error) {
	if s.callout == nil || s.callout.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.callout
	return &copied, nil
}
func (s *stubRepo) FindResponse(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error) {
	if s.response == nil || s.response.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.response
	return &copied, nil
}
func (s *stubRepo) AssignCallout(ctx context.Context, calloutID, jobID uuid.UUID) (int64, error) {
	s.assigned = jobID
	return s.assignAffected, nil
}
func (s *stubRepo) PromoteResponse(ctx context.Context, responseID uuid.UUID) (int64, error) {
	s.promoted = responseID
	return s.promoteAffected, nil
}
func (s *stubRepo) Siblings(ctx context.Context, calloutID, winnerID uuid.UUID) ([]models.CalloutResponse, error) {
	return s.siblings, nil
}
func (s *stubRepo) DemoteSiblings(ctx context.Context, calloutID, winnerID uuid.UUID) (int64, error) {
	s.demoted = true
	return int64(len(s.siblings)), nil
}

type stubJobCreator struct {
	created *jobs.CreateJobInput
	job     *models.Job
}

func (s *stubJobCreator) CreateJob(ctx context.Context, tx *gorm.DB, input jobs.CreateJobInput) (*models.Job, error) {
	s.created = &input
	if s.job == nil {
		s.job = &models.Job{ID: uuid.New(), PartnerID: input.PartnerID}
	}
	return s.job, nil
}

func operatorActor() callouts.Actor {
	return callouts.Actor{ActorID: uuid.New(), Role: string(enums.ActorRoleOperator)}
}

func respondedFixture() (*stubRepo, *models.Callout, *models.CalloutResponse) {
	eta := 30
	callout := &models.Callout{
		ID:             uuid.New(),
		ClientName:     "Jordan Miles",
		ClientPhone:    "07700900001",
		ClientAddress:  "1 Harbour Way",
		ClientPostcode: "BS1 4DJ",
		IncidentType:   enums.IncidentTypeLeak,
		Status:         enums.CalloutStatusOpen,
	}
	response := &models.CalloutResponse{
		ID:                     uuid.New(),
		CalloutID:              callout.ID,
		PartnerID:              uuid.New(),
		Status:                 enums.ResponseStatusResponded,
		ProposedArrivalMinutes: &eta,
	}
	repo := &stubRepo{
		callout:         callout,
		response:        response,
		siblings: []models.CalloutResponse{
			{ID: uuid.New(), PartnerID: uuid.New()},
			{ID: uuid.New(), PartnerID: uuid.New()},
		},
		assignAffected:  1,
		promoteAffected: 1,
	}
	return repo, callout, response
}

func newSelectionService(t *testing.T, repo Repository, creator jobs.Creator, publisher *stubOutbox) Service {
	t.Helper()
	svc, err := NewService(repo, creator, stubTxRunner{}, publisher, nil)
	if err != nil {
		t.Fatalf("unexpected error building service: %v", err)
	}
	return svc
}

func TestSelectAssignsWinner(t *testing.T) {
	repo, callout, response := respondedFixture()
	creator := &stubJobCreator{}
	publisher := &stubOutbox{}

	svc := newSelectionService(t, repo, creator, publisher)
	result, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Callout.Status != enums.CalloutStatusAssigned {
		t.Fatalf("expected assigned callout, got %s", result.Callout.Status)
	}
	if result.Callout.LinkedJobID == nil || *result.Callout.LinkedJobID != result.Job.ID {
		t.Fatal("callout not linked to job")
	}
	if creator.created == nil || creator.created.PartnerID != response.PartnerID {
		t.Fatal("job not created for winning partner")
	}
	if creator.created.ClientName != callout.ClientName || creator.created.IncidentType != callout.IncidentType {
		t.Fatal("job did not inherit callout details")
	}
	if repo.promoted != response.ID {
		t.Fatal("winner not promoted")
	}
	if !repo.demoted {
		t.Fatal("siblings not demoted")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventCalloutAssigned {
		t.Fatalf("expected assigned event, got %+v", publisher.events)
	}
	payload, ok := publisher.events[0].Data.(payloads.CalloutAssignedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", publisher.events[0].Data)
	}
	if len(payload.NotSelectedPartnerIDs) != 2 {
		t.Fatalf("expected both losing partners on the event, got %+v", payload.NotSelectedPartnerIDs)
	}
}

func TestSelectPendingResponseRejected(t *testing.T) {
	repo, callout, response := respondedFixture()
	repo.response.Status = enums.ResponseStatusPending
	creator := &stubJobCreator{}

	svc := newSelectionService(t, repo, creator, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error selecting pending response")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if creator.created != nil {
		t.Fatal("job should not be created")
	}
}

func TestSelectDeclinedResponseRejected(t *testing.T) {
	repo, callout, response := respondedFixture()
	repo.response.Status = enums.ResponseStatusDeclined

	svc := newSelectionService(t, repo, &stubJobCreator{}, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error selecting declined response")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStaleResponse {
		t.Fatalf("expected stale response, got %v", err)
	}
}

func TestSelectAlreadyAssignedCallout(t *testing.T) {
	repo, callout, response := respondedFixture()
	repo.callout.Status = enums.CalloutStatusAssigned

	svc := newSelectionService(t, repo, &stubJobCreator{}, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error selecting on assigned callout")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeAlreadyAssigned {
		t.Fatalf("expected already assigned, got %v", err)
	}
}

func TestSelectLosesCalloutRace(t *testing.T) {
	repo, callout, response := respondedFixture()
	repo.assignAffected = 0

	svc := newSelectionService(t, repo, &stubJobCreator{}, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error after losing the assignment race")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeAlreadyAssigned {
		t.Fatalf("expected already assigned, got %v", err)
	}
}

func TestSelectLosesResponseRace(t *testing.T) {
	repo, callout, response := respondedFixture()
	repo.promoteAffected = 0

	svc := newSelectionService(t, repo, &stubJobCreator{}, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error after losing the promotion race")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStaleResponse {
		t.Fatalf("expected stale response, got %v", err)
	}
}

func TestSelectResponseFromOtherCallout(t *testing.T) {
	repo, callout, _ := respondedFixture()
	repo.response.CalloutID = uuid.New()

	svc := newSelectionService(t, repo, &stubJobCreator{}, &stubOutbox{})
	_, err := svc.Select(context.Background(), SelectInput{
		CalloutID:  callout.ID,
		ResponseID: repo.response.ID,
		Actor:      operatorActor(),
	})
	if err == nil {
		t.Fatal("expected error for response outside the callout")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
