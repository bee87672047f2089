package callouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/internal/partners"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/metrics"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the operator-facing callout surface: broadcast, cancel, reads.
type Service interface {
	Broadcast(ctx context.Context, input BroadcastInput) (*BroadcastResult, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Callout, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, calloutID uuid.UUID) (*models.Callout, error)
}

type service struct {
	repo     Repository
	partners partners.Repository
	tx       txRunner
	outbox   outboxPublisher
	dispatch *metrics.DispatchMetrics
}

// NewService builds the callout service with the required dependencies.
// Metrics may be nil; the counters degrade to no-ops.
func NewService(repo Repository, partnerRepo partners.Repository, tx txRunner, publisher outboxPublisher, dispatch *metrics.DispatchMetrics) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "callouts repository required")
	}
	if partnerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "partners repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	return &service{
		repo:     repo,
		partners: partnerRepo,
		tx:       tx,
		outbox:   publisher,
		dispatch: dispatch,
	}, nil
}

func (s *service) Broadcast(ctx context.Context, input BroadcastInput) (*BroadcastResult, error) {
	if input.ClientName == "" || input.ClientPhone == "" || input.ClientAddress == "" || input.ClientPostcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client contact details required")
	}
	if !input.IncidentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid incident type")
	}
	if !input.Priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid priority")
	}
	partnerIDs := dedupeIDs(input.PartnerIDs)
	if len(partnerIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one partner required")
	}

	now := time.Now().UTC()
	var created *models.Callout

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		partnerRows, err := s.partners.WithTx(tx).FindByIDs(ctx, partnerIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partners")
		}
		if missing := missingIDs(partnerIDs, partnerRows); len(missing) > 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "partner not found").
				WithDetails(map[string]any{"partner_ids": idsToStrings(missing)})
		}
		if ineligible := ineligibleIDs(partnerRows); len(ineligible) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "partner not emergency eligible").
				WithDetails(map[string]any{"partner_ids": idsToStrings(ineligible)})
		}

		repo := s.repo.WithTx(tx)
		callout := &models.Callout{
			ClientName:     input.ClientName,
			ClientPhone:    input.ClientPhone,
			ClientAddress:  input.ClientAddress,
			ClientPostcode: input.ClientPostcode,
			IncidentType:   input.IncidentType,
			Priority:       input.Priority,
			Description:    input.Description,
			Status:         enums.CalloutStatusOpen,
			BroadcastAt:    now,
		}
		if _, err := repo.Create(ctx, callout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create callout")
		}

		responses := make([]models.CalloutResponse, 0, len(partnerIDs))
		for _, partnerID := range partnerIDs {
			responses = append(responses, models.CalloutResponse{
				CalloutID: callout.ID,
				PartnerID: partnerID,
				Status:    enums.ResponseStatusPending,
			})
		}
		if err := repo.CreateResponses(ctx, responses); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create responses")
		}
		callout.Responses = responses
		created = callout

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCalloutBroadcast,
			AggregateType: enums.AggregateCallout,
			AggregateID:   callout.ID,
			Version:       1,
			Actor:         input.Actor.Ref(),
			Data: payloads.CalloutBroadcastEvent{
				CalloutID:    callout.ID,
				IncidentType: callout.IncidentType,
				Priority:     callout.Priority,
				PartnerIDs:   partnerIDs,
				BroadcastAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch.IncBroadcast(string(input.IncidentType))
	return &BroadcastResult{Callout: created, ResponseCount: len(created.Responses)}, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Callout, error) {
	if input.CalloutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id required")
	}

	now := time.Now().UTC()
	var cancelled *models.Callout

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateStatusIfCurrent(ctx, input.CalloutID,
			enums.CalloutStatusOpen, enums.CalloutStatusCancelled,
			map[string]any{"cancelled_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel callout")
		}
		if affected == 0 {
			callout, err := repo.FindByID(ctx, input.CalloutID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "callout not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load callout")
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cancellation only valid while open").
				WithDetails(map[string]any{"status": callout.Status})
		}

		callout, err := repo.FindByID(ctx, input.CalloutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload callout")
		}
		cancelled = callout

		var livePartners []uuid.UUID
		for _, response := range callout.Responses {
			if !response.Status.IsTerminal() {
				livePartners = append(livePartners, response.PartnerID)
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCalloutCancelled,
			AggregateType: enums.AggregateCallout,
			AggregateID:   callout.ID,
			Version:       1,
			Actor:         input.Actor.Ref(),
			Data: payloads.CalloutCancelledEvent{
				CalloutID:   callout.ID,
				PartnerIDs:  livePartners,
				CancelledAt: now,
				Reason:      input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listCalloutsParams{
		Limit:   params.Limit,
		Filters: params.Filters,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list callouts")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Get(ctx context.Context, calloutID uuid.UUID) (*models.Callout, error) {
	if calloutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id required")
	}
	callout, err := s.repo.FindByID(ctx, calloutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "callout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load callout")
	}
	return callout, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(wanted []uuid.UUID, found []models.Partner) []uuid.UUID {
	present := make(map[uuid.UUID]struct{}, len(found))
	for _, p := range found {
		present[p.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range wanted {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func ineligibleIDs(partnerRows []models.Partner) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range partnerRows {
		if !p.Active || !p.EmergencyEligible {
			out = append(out, p.ID)
		}
	}
	return out
}

func idsToStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
