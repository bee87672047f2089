package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPollMs      = 500
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	backoffCap          = 10 * time.Second
	jitterSpan          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventSource interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterSink interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type topicResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher narrows the Pub/Sub publisher so tests can stand in a fake.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) ackFuture
}

type ackFuture interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) topicPublisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               txRunner
	PubSub           broker
	Repository       eventSource
	Registry         topicResolver
	PublisherFactory publisherFactory
	DLQRepository    deadLetterSink
}

// Service drains the outbox table into Pub/Sub. Rows are claimed with
// SKIP LOCKED so several replicas can run side by side.
type Service struct {
	logg        *logger.Logger
	db          txRunner
	repo        eventSource
	pubsub      broker
	registry    topicResolver
	dlq         deadLetterSink
	newPub      publisherFactory
	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	newPub := params.PublisherFactory
	if newPub == nil {
		newPub = func(topic string) topicPublisher {
			raw := params.PubSub.Publisher(topic)
			if raw == nil {
				return nil
			}
			return gcpPublisher{raw}
		}
	}

	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		newPub:      newPub,
		batchSize:   params.Config.Outbox.BatchSize,
		maxAttempts: params.Config.Outbox.MaxAttempts,
		poll:        time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if s.batchSize <= 0 {
		s.batchSize = fallbackBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = fallbackMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = fallbackPollMs * time.Millisecond
	}
	return s, nil
}

// Run polls until the context is canceled. Empty polls sleep the configured
// interval; batch errors back off exponentially up to backoffCap.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database unreachable", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub unreachable", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}

	delay := s.poll
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		drained, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			delay = min(delay*2, backoffCap)
		case drained:
			delay = s.poll
			continue // keep draining while rows are waiting
		default:
			delay = s.poll
		}

		if err := s.pause(ctx, delay+s.randomJitter()); err != nil {
			return err
		}
	}
}

// processBatch claims one batch and walks it event by event. Per-event
// publish failures never abort the batch; only bookkeeping writes do, so a
// failed mark rolls the whole claim back for a clean retry.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var drained bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		drained = true

		for _, event := range events {
			if err := s.dispatchEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return drained, err
}

func (s *Service) dispatchEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.DLQReasonDecodeFailure, err, "")
	}
	topic := resolved.Descriptor.Topic

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(s.eventCtx(ctx, event, topic), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return s.deadLetter(ctx, tx, event, enums.DLQReasonPublishFailure, pubErr, topic)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		exhausted := fmt.Errorf("max publish attempts reached: %w", pubErr)
		return s.deadLetter(ctx, tx, event, enums.DLQReasonMaxAttempts, exhausted, topic)
	}

	warnCtx := s.logg.WithField(s.eventCtx(ctx, event, topic), "error", pubErr.Error())
	s.logg.Warn(warnCtx, "outbox publish failed; will retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the event into the DLQ and pins its attempt count so
// the fetch filter never returns it again, all inside the batch transaction.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string) error {
	warnCtx := s.logg.WithFields(s.eventCtx(ctx, event, topic), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	s.logg.Warn(warnCtx, "outbox event moved to dead letter queue")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.newPub(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	future := pub.Publish(publishCtx, msg)
	if future == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	_, err := future.Get(publishCtx)
	return err
}

func (s *Service) eventCtx(ctx context.Context, event models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) randomJitter() time.Duration {
	return time.Duration(s.jitter.Int63n(int64(jitterSpan)))
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	raw *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) ackFuture {
	if p.raw == nil {
		return nil
	}
	return p.raw.Publish(ctx, msg)
}
