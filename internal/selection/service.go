package selection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/internal/callouts"
	"github.com/tradedesk-app/tradedesk-backend/internal/jobs"
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

// SelectInput names the winning response for a callout.
type SelectInput struct {
	CalloutID  uuid.UUID
	ResponseID uuid.UUID
	Actor      callouts.Actor
}

// SelectResult returns the assigned callout and the job created for the winner.
type SelectResult struct {
	Callout *models.Callout `json:"callout"`
	Job     *models.Job     `json:"job"`
}

// Service arbitrates winner selection. The whole transition commits as one
// transaction: job insert, callout assignment, winner promotion, sibling
// demotion, and the audit event.
type Service interface {
	Select(ctx context.Context, input SelectInput) (*SelectResult, error)
}

type service struct {
	repo     Repository
	jobs     jobs.Creator
	tx       txRunner
	outbox   outboxPublisher
	dispatch *metrics.DispatchMetrics
}

// NewService builds the selection arbiter. Metrics may be nil.
func NewService(repo Repository, jobCreator jobs.Creator, tx txRunner, publisher outboxPublisher, dispatch *metrics.DispatchMetrics) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "selection repository required")
	}
	if jobCreator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "job creator required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	return &service{
		repo:     repo,
		jobs:     jobCreator,
		tx:       tx,
		outbox:   publisher,
		dispatch: dispatch,
	}, nil
}

func (s *service) Select(ctx context.Context, input SelectInput) (*SelectResult, error) {
	if input.CalloutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callout id required")
	}
	if input.ResponseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response id required")
	}

	now := time.Now().UTC()
	var result *SelectResult

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		callout, err := repo.FindCallout(ctx, input.CalloutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "callout not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load callout")
		}
		if callout.Status != enums.CalloutStatusOpen {
			return pkgerrors.New(pkgerrors.CodeAlreadyAssigned, "callout is no longer open").
				WithDetails(map[string]any{"status": callout.Status})
		}

		response, err := repo.FindResponse(ctx, input.ResponseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "response not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load response")
		}
		if response.CalloutID != callout.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "response does not belong to callout")
		}

		switch response.Status {
		case enums.ResponseStatusResponded:
			// proceed
		case enums.ResponseStatusPending, enums.ResponseStatusAcknowledged:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "partner has not submitted an eta").
				WithDetails(map[string]any{"status": response.Status})
		default:
			return pkgerrors.New(pkgerrors.CodeStaleResponse, "response is no longer selectable").
				WithDetails(map[string]any{"status": response.Status})
		}

		job, err := s.jobs.CreateJob(ctx, tx, jobs.CreateJobInput{
			PartnerID:      response.PartnerID,
			ClientName:     callout.ClientName,
			ClientPhone:    callout.ClientPhone,
			ClientAddress:  callout.ClientAddress,
			ClientPostcode: callout.ClientPostcode,
			IncidentType:   callout.IncidentType,
			Description:    callout.Description,
		})
		if err != nil {
			return err
		}

		// CAS the callout first. A concurrent selection that already won
		// flips it off open, and this writer rolls the job back.
		affected, err := repo.AssignCallout(ctx, callout.ID, job.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign callout")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeAlreadyAssigned, "callout is no longer open")
		}

		affected, err = repo.PromoteResponse(ctx, response.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote response")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStaleResponse, "response is no longer selectable")
		}

		siblings, err := repo.Siblings(ctx, callout.ID, response.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list siblings")
		}
		notSelected := make([]uuid.UUID, 0, len(siblings))
		notSelectedPartners := make([]uuid.UUID, 0, len(siblings))
		for _, sibling := range siblings {
			notSelected = append(notSelected, sibling.ID)
			notSelectedPartners = append(notSelectedPartners, sibling.PartnerID)
		}
		if _, err := repo.DemoteSiblings(ctx, callout.ID, response.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote siblings")
		}

		callout.Status = enums.CalloutStatusAssigned
		callout.LinkedJobID = &job.ID
		result = &SelectResult{Callout: callout, Job: job}

		arrival := 0
		if response.ProposedArrivalMinutes != nil {
			arrival = *response.ProposedArrivalMinutes
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCalloutAssigned,
			AggregateType: enums.AggregateCallout,
			AggregateID:   callout.ID,
			Version:       1,
			Actor:         input.Actor.Ref(),
			Data: payloads.CalloutAssignedEvent{
				CalloutID:             callout.ID,
				ResponseID:            response.ID,
				PartnerID:             response.PartnerID,
				JobID:                 job.ID,
				ArrivalMinutes:        arrival,
				NotSelectedIDs:        notSelected,
				NotSelectedPartnerIDs: notSelectedPartners,
				AssignedAt:            now,
			},
		})
	})
	if err != nil {
		s.dispatch.IncSelection(selectionOutcome(err))
		return nil, err
	}

	s.dispatch.IncSelection("assigned")
	return result, nil
}

func selectionOutcome(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeAlreadyAssigned:
		return "already_assigned"
	case pkgerrors.CodeStaleResponse:
		return "stale_response"
	case pkgerrors.CodeInvalidTransition:
		return "invalid_transition"
	default:
		return "error"
	}
}
