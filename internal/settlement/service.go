package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
	"github.com/tradedesk-app/tradedesk-backend/pkg/metrics"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StartInput marks the assigned callout as underway.
type StartInput struct {
	CalloutID uuid.UUID
	Actor     callouts.Actor
}

// CompleteInput closes the callout with the amount the partner collected.
// The platform fee percent comes from config, never from the caller.
type CompleteInput struct {
	CalloutID      uuid.UUID
	TotalCollected decimal.Decimal
	Notes          *string
	Actor          callouts.Actor
}

// SettlementResult echoes the figures written to the resolved callout.
type SettlementResult struct {
	Callout         *models.Callout `json:"callout"`
	TotalCollected  decimal.Decimal `json:"total_collected"`
	FeePercent      int64           `json:"fee_percent"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	PartnerEarnings decimal.Decimal `json:"partner_earnings"`
	Message         string          `json:"message"`
}

// Service settles completed callouts for the winning partner.
type Service interface {
	Start(ctx context.Context, input StartInput) (*models.Callout, error)
	Complete(ctx context.Context, input CompleteInput) (*SettlementResult, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	dispatch   *metrics.DispatchMetrics
	feePercent int64
}

// NewService builds the settlement service. Metrics may be nil.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, dispatch *metrics.DispatchMetrics, cfg config.SettlementConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if cfg.FeePercent < 0 || cfg.FeePercent > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement fee percent out of range")
	}
	return &service{
		repo:       repo,
		tx:         tx,
		outbox:     publisher,
		dispatch:   dispatch,
		feePercent: cfg.FeePercent,
	}, nil
}

func (s *service) Start(ctx context.Context, input StartInput) (*models.Callout, error) {
	if input.CalloutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id required")
	}

	var started *models.Callout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.requireWinner(ctx, repo, input.CalloutID, input.Actor); err != nil {
			return err
		}

		affected, err := repo.StartCallout(ctx, input.CalloutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start callout")
		}
		if affected == 0 {
			callout, err := repo.FindCallout(ctx, input.CalloutID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload callout")
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "work can only start on an assigned callout").
				WithDetails(map[string]any{"status": callout.Status})
		}

		callout, err := repo.FindCallout(ctx, input.CalloutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload callout")
		}
		started = callout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*SettlementResult, error) {
	if input.CalloutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id required")
	}
	if !input.TotalCollected.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total collected must be positive")
	}

	now := time.Now().UTC()
	fee := input.TotalCollected.
		Mul(decimal.NewFromInt(s.feePercent)).
		Div(decimal.NewFromInt(100)).
		Round(2)
	earnings := input.TotalCollected.Sub(fee)

	var result *SettlementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		winner, err := s.requireWinner(ctx, repo, input.CalloutID, input.Actor)
		if err != nil {
			return err
		}

		affected, err := repo.ResolveCallout(ctx, input.CalloutID, settlementUpdate{
			TotalCollected:  input.TotalCollected,
			FeePercent:      s.feePercent,
			FeeAmount:       fee,
			PartnerEarnings: earnings,
			CompletionNotes: input.Notes,
			ResolvedAt:      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve callout")
		}
		if affected == 0 {
			callout, err := repo.FindCallout(ctx, input.CalloutID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload callout")
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "completion only valid while assigned or in progress").
				WithDetails(map[string]any{"status": callout.Status})
		}

		callout, err := repo.FindCallout(ctx, input.CalloutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload callout")
		}

		var jobID uuid.UUID
		if callout.LinkedJobID != nil {
			jobID = *callout.LinkedJobID
		}
		result = &SettlementResult{
			Callout:         callout,
			TotalCollected:  input.TotalCollected,
			FeePercent:      s.feePercent,
			FeeAmount:       fee,
			PartnerEarnings: earnings,
			Message: fmt.Sprintf("Job complete. Platform fee %s (%d%%), your earnings %s.",
				fee.StringFixed(2), s.feePercent, earnings.StringFixed(2)),
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCalloutResolved,
			AggregateType: enums.AggregateCallout,
			AggregateID:   callout.ID,
			Version:       1,
			Actor:         input.Actor.Ref(),
			Data: payloads.CalloutResolvedEvent{
				CalloutID:       callout.ID,
				JobID:           jobID,
				PartnerID:       winner.PartnerID,
				TotalCollected:  input.TotalCollected,
				FeeAmount:       fee,
				PartnerEarnings: earnings,
				FeePercent:      s.feePercent,
				ResolvedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch.IncSettlement()
	return result, nil
}

// requireWinner checks the caller holds the selected response for the callout.
func (s *service) requireWinner(ctx context.Context, repo Repository, calloutID uuid.UUID, actor callouts.Actor) (*models.CalloutResponse, error) {
	if actor.PartnerID == nil || *actor.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeOwnership, "partner context missing")
	}
	if _, err := repo.FindCallout(ctx, calloutID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "callout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load callout")
	}

	winner, err := repo.FindSelectedResponse(ctx, calloutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "callout has no selected partner")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load selected response")
	}
	if winner.PartnerID != *actor.PartnerID {
		return nil, pkgerrors.New(pkgerrors.CodeOwnership, "callout belongs to another partner")
	}
	return winner, nil
}
