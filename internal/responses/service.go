package responses

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
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

// Service applies partner-submitted transitions to their own response rows.
// Every write re-checks the parent callout is still open inside the
// transaction, so a transition racing a Select or Cancel fails cleanly.
type Service interface {
	Acknowledge(ctx context.Context, input ActionInput) (*models.CalloutResponse, error)
	Respond(ctx context.Context, input RespondInput) (*models.CalloutResponse, error)
	Decline(ctx context.Context, input DeclineInput) (*models.CalloutResponse, error)
	ListMine(ctx context.Context, params ListParams) (*ListResult, error)
}

// ActionInput identifies the target row and the acting partner.
type ActionInput struct {
	ResponseID uuid.UUID
	ActorID    uuid.UUID
	PartnerID  uuid.UUID
}

// RespondInput carries the partner's competing ETA bid.
type RespondInput struct {
	ResponseID uuid.UUID
	ActorID    uuid.UUID
	PartnerID  uuid.UUID
	ETAMinutes int
	Notes      *string
}

// DeclineInput carries the partner's bow-out and optional reason.
type DeclineInput struct {
	ResponseID uuid.UUID
	ActorID    uuid.UUID
	PartnerID  uuid.UUID
	Reason     *string
}

// ListParams configures the partner "my responses" poll endpoint.
type ListParams struct {
	PartnerID  uuid.UUID
	Limit      int
	Cursor     string
	ActiveOnly bool
}

// ListResult wraps a page of responses plus the cursor for the next page.
type ListResult struct {
	Items  []models.CalloutResponse `json:"items"`
	Cursor string                   `json:"cursor"`
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds the partner response service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "responses repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: publisher}, nil
}

func (s *service) Acknowledge(ctx context.Context, input ActionInput) (*models.CalloutResponse, error) {
	if input.ResponseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response id required")
	}

	now := time.Now().UTC()
	var out *models.CalloutResponse

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		response, err := s.loadOwned(ctx, repo, input.ResponseID, input.PartnerID)
		if err != nil {
			return err
		}

		// Double-tap: a second acknowledge is a no-op success, not an error.
		if response.Status == enums.ResponseStatusAcknowledged {
			out = response
			return nil
		}
		if response.Status != enums.ResponseStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "acknowledge only valid from pending").
				WithDetails(map[string]any{"status": response.Status})
		}
		if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
			return err
		}

		affected, err := repo.UpdateStatusIfCurrent(ctx, response.ID,
			[]enums.ResponseStatus{enums.ResponseStatusPending},
			enums.ResponseStatusAcknowledged,
			map[string]any{"acknowledged_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acknowledge response")
		}
		if affected == 0 {
			// Lost a race; if the concurrent writer also acknowledged, the
			// idempotency contract still holds.
			current, err := repo.FindByID(ctx, response.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload response")
			}
			if current.Status == enums.ResponseStatusAcknowledged {
				out = current
				return nil
			}
			// The row itself did not move, so the failed guard was the
			// callout's: a concurrent cancel or selection closed it.
			if current.Status == enums.ResponseStatusPending {
				if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
					return err
				}
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "acknowledge only valid from pending").
				WithDetails(map[string]any{"status": current.Status})
		}

		response.Status = enums.ResponseStatusAcknowledged
		response.AcknowledgedAt = &now
		out = response

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventResponseAcknowledged,
			AggregateType: enums.AggregateCalloutResponse,
			AggregateID:   response.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.PartnerID),
			Data: payloads.ResponseAcknowledgedEvent{
				CalloutID:      response.CalloutID,
				ResponseID:     response.ID,
				PartnerID:      response.PartnerID,
				AcknowledgedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Respond(ctx context.Context, input RespondInput) (*models.CalloutResponse, error) {
	if input.ResponseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response id required")
	}
	if input.ETAMinutes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "eta minutes must be positive")
	}

	now := time.Now().UTC()
	var out *models.CalloutResponse

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		response, err := s.loadOwned(ctx, repo, input.ResponseID, input.PartnerID)
		if err != nil {
			return err
		}
		if !response.Status.CanRespond() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "respond only valid from pending or acknowledged").
				WithDetails(map[string]any{"status": response.Status})
		}
		if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
			return err
		}

		affected, err := repo.UpdateStatusIfCurrent(ctx, response.ID,
			[]enums.ResponseStatus{enums.ResponseStatusPending, enums.ResponseStatusAcknowledged},
			enums.ResponseStatusResponded,
			map[string]any{
				"proposed_arrival_minutes": input.ETAMinutes,
				"response_notes":           input.Notes,
				"responded_at":             now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record response")
		}
		if affected == 0 {
			current, err := repo.FindByID(ctx, response.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload response")
			}
			if current.Status.CanRespond() {
				if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
					return err
				}
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "respond only valid from pending or acknowledged").
				WithDetails(map[string]any{"status": current.Status})
		}

		eta := input.ETAMinutes
		response.Status = enums.ResponseStatusResponded
		response.ProposedArrivalMinutes = &eta
		response.ResponseNotes = input.Notes
		response.RespondedAt = &now
		out = response

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventResponseSubmitted,
			AggregateType: enums.AggregateCalloutResponse,
			AggregateID:   response.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.PartnerID),
			Data: payloads.ResponseSubmittedEvent{
				CalloutID:      response.CalloutID,
				ResponseID:     response.ID,
				PartnerID:      response.PartnerID,
				ArrivalMinutes: input.ETAMinutes,
				RespondedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Decline(ctx context.Context, input DeclineInput) (*models.CalloutResponse, error) {
	if input.ResponseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response id required")
	}

	now := time.Now().UTC()
	var out *models.CalloutResponse

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		response, err := s.loadOwned(ctx, repo, input.ResponseID, input.PartnerID)
		if err != nil {
			return err
		}

		// Repeat decline is a no-op success, matching acknowledge.
		if response.Status == enums.ResponseStatusDeclined {
			out = response
			return nil
		}
		if !response.Status.CanDecline() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "decline only valid from pending or acknowledged").
				WithDetails(map[string]any{"status": response.Status})
		}
		if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
			return err
		}

		affected, err := repo.UpdateStatusIfCurrent(ctx, response.ID,
			[]enums.ResponseStatus{enums.ResponseStatusPending, enums.ResponseStatusAcknowledged},
			enums.ResponseStatusDeclined,
			map[string]any{
				"decline_reason": input.Reason,
				"declined_at":    now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decline response")
		}
		if affected == 0 {
			current, err := repo.FindByID(ctx, response.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload response")
			}
			if current.Status == enums.ResponseStatusDeclined {
				out = current
				return nil
			}
			if current.Status.CanDecline() {
				if err := s.requireCalloutOpen(ctx, repo, response.CalloutID); err != nil {
					return err
				}
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "decline only valid from pending or acknowledged").
				WithDetails(map[string]any{"status": current.Status})
		}

		response.Status = enums.ResponseStatusDeclined
		response.DeclineReason = input.Reason
		response.DeclinedAt = &now
		out = response

		reason := ""
		if input.Reason != nil {
			reason = *input.Reason
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventResponseDeclined,
			AggregateType: enums.AggregateCalloutResponse,
			AggregateID:   response.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.PartnerID),
			Data: payloads.ResponseDeclinedEvent{
				CalloutID:  response.CalloutID,
				ResponseID: response.ID,
				PartnerID:  response.PartnerID,
				Reason:     reason,
				DeclinedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ListMine(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}

	query := listResponsesParams{
		PartnerID:  params.PartnerID,
		Limit:      params.Limit,
		ActiveOnly: params.ActiveOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListByPartner(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list responses")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) loadOwned(ctx context.Context, repo Repository, responseID, partnerID uuid.UUID) (*models.CalloutResponse, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeOwnership, "partner context missing")
	}
	response, err := repo.FindByID(ctx, responseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "response not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load response")
	}
	if response.PartnerID != partnerID {
		return nil, pkgerrors.New(pkgerrors.CodeOwnership, "response belongs to another partner")
	}
	return response, nil
}

func (s *service) requireCalloutOpen(ctx context.Context, repo Repository, calloutID uuid.UUID) error {
	status, err := repo.FindCalloutStatus(ctx, calloutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "callout not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load callout status")
	}
	if status != enums.CalloutStatusOpen {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "callout is no longer open").
			WithDetails(map[string]any{"callout_status": status})
	}
	return nil
}

func actorRef(actorID uuid.UUID, partnerID uuid.UUID) *outbox.ActorRef {
	partner := partnerID
	return &outbox.ActorRef{
		ActorID:   actorID,
		PartnerID: &partner,
		Role:      string(enums.ActorRolePartner),
	}
}
