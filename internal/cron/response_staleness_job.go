package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
)

const (
	responseStalenessBatch = 200
	staleDeclineReason     = "no response before deadline"
)

type ResponseStalenessJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository staleResponseRepo
	Outbox     expiredEventEmitter
	StaleAfter time.Duration
	BatchSize  int
}

type staleResponseRepo interface {
	ListStalePending(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]models.CalloutResponse, error)
	ExpirePending(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, now time.Time) (int64, error)
}

type expiredEventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NewResponseStalenessJob sweeps pending invites that sat unanswered past the
// configured window, declining them with a system reason. A StaleAfter of
// zero disables the sweep entirely.
func NewResponseStalenessJob(params ResponseStalenessJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("responses repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = responseStalenessBatch
	}
	return &responseStalenessJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		outbox:     params.Outbox,
		staleAfter: params.StaleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type responseStalenessJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       staleResponseRepo
	outbox     expiredEventEmitter
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *responseStalenessJob) Name() string { return "response-staleness" }

func (j *responseStalenessJob) Run(ctx context.Context) error {
	if j.staleAfter <= 0 {
		j.logg.Debug(ctx, "response staleness sweep disabled")
		return nil
	}

	now := j.now().UTC()
	cutoff := now.Add(-j.staleAfter)
	var expired int

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		stale, err := j.repo.ListStalePending(ctx, tx, cutoff, j.batch)
		if err != nil {
			return err
		}
		for _, row := range stale {
			affected, err := j.repo.ExpirePending(ctx, tx, row.ID, staleDeclineReason, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				// The partner acted between the list and the update.
				continue
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventResponseExpired,
				AggregateType: enums.AggregateCalloutResponse,
				AggregateID:   row.ID,
				Version:       1,
				Data: payloads.ResponseExpiredEvent{
					CalloutID:  row.CalloutID,
					ResponseID: row.ID,
					PartnerID:  row.PartnerID,
					ExpiredAt:  now,
				},
			}
			if err := j.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}
			// The partner also gets an in-app alert, routed through the
			// notification topic.
			alert := outbox.DomainEvent{
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregateCalloutResponse,
				AggregateID:   row.ID,
				Version:       1,
				Data: payloads.NotificationRequestedEvent{
					RecipientID: row.PartnerID,
					CalloutID:   row.CalloutID,
					Type:        enums.NotificationTypeCalloutUpdate,
					Title:       "Callout invite expired",
					Body:        "Your invite lapsed without a response and was declined automatically.",
				},
			}
			if err := j.outbox.EmitIfNotExists(ctx, tx, alert); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("response staleness sweep: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_expired": expired,
	})
	j.logg.Info(logCtx, "response staleness sweep complete")
	return nil
}
