package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/idempotency"
	"github.com/tradedesk-app/tradedesk-backend/pkg/outbox/payloads"
)

const dispatchNotificationConsumer = "dispatch-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches dispatch events and materialises in-app notifications for
// the partners involved.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a dispatch notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("dispatch subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !notifiableEvent(eventType) {
		c.logg.Debug(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, dispatchNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, dispatchNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func notifiableEvent(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventCalloutBroadcast, enums.EventCalloutAssigned,
		enums.EventCalloutCancelled, enums.EventCalloutResolved,
		enums.EventNotificationRequested:
		return true
	default:
		return false
	}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventCalloutBroadcast:
		var payload payloads.CalloutBroadcastEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.invitePartners(ctx, payload, logCtx)
	case enums.EventCalloutAssigned:
		var payload payloads.CalloutAssignedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyOutcome(ctx, payload, logCtx)
	case enums.EventCalloutCancelled:
		var payload payloads.CalloutCancelledEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifyCancelled(ctx, payload, logCtx)
	case enums.EventCalloutResolved:
		var payload payloads.CalloutResolvedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notifySettlement(ctx, payload, logCtx)
	case enums.EventNotificationRequested:
		var payload payloads.NotificationRequestedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.surfaceRequested(ctx, payload, logCtx)
	default:
		return nil
	}
}

func (c *Consumer) invitePartners(ctx context.Context, payload payloads.CalloutBroadcastEvent, logCtx context.Context) error {
	if payload.CalloutID == uuid.Nil {
		return fmt.Errorf("callout id missing")
	}
	link := fmt.Sprintf("/callouts/%s", payload.CalloutID)
	for _, partnerID := range payload.PartnerIDs {
		if partnerID == uuid.Nil {
			continue
		}
		notification := &models.Notification{
			RecipientID: partnerID,
			Type:        enums.NotificationTypeCalloutInvite,
			Title:       "Emergency callout",
			Message:     fmt.Sprintf("New %s %s callout. Confirm your availability.", payload.Priority, payload.IncidentType),
			Link:        stringPtr(link),
		}
		if err := c.repo.Create(ctx, notification); err != nil {
			return err
		}
	}
	c.logg.Info(logCtx, "partners invited to callout")
	return nil
}

// notifyOutcome tells the winner about the created job and the losing
// partners that the callout is filled.
func (c *Consumer) notifyOutcome(ctx context.Context, payload payloads.CalloutAssignedEvent, logCtx context.Context) error {
	if payload.PartnerID == uuid.Nil {
		return fmt.Errorf("partner id missing")
	}
	link := fmt.Sprintf("/jobs/%s", payload.JobID)
	notification := &models.Notification{
		RecipientID: payload.PartnerID,
		Type:        enums.NotificationTypeCalloutOutcome,
		Title:       "Callout assigned to you",
		Message:     fmt.Sprintf("You were selected with an ETA of %d minutes. A job has been created.", payload.ArrivalMinutes),
		Link:        stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}

	calloutLink := fmt.Sprintf("/callouts/%s", payload.CalloutID)
	for _, partnerID := range payload.NotSelectedPartnerIDs {
		if partnerID == uuid.Nil || partnerID == payload.PartnerID {
			continue
		}
		loser := &models.Notification{
			RecipientID: partnerID,
			Type:        enums.NotificationTypeCalloutOutcome,
			Title:       "Callout filled",
			Message:     "Another partner was selected for this callout.",
			Link:        stringPtr(calloutLink),
		}
		if err := c.repo.Create(ctx, loser); err != nil {
			return err
		}
	}
	c.logg.Info(logCtx, "assignment outcome notifications created")
	return nil
}

func (c *Consumer) notifyCancelled(ctx context.Context, payload payloads.CalloutCancelledEvent, logCtx context.Context) error {
	if payload.CalloutID == uuid.Nil {
		return fmt.Errorf("callout id missing")
	}
	link := fmt.Sprintf("/callouts/%s", payload.CalloutID)
	message := "The callout was withdrawn by the operator."
	if payload.Reason != "" {
		message = fmt.Sprintf("The callout was withdrawn by the operator: %s.", payload.Reason)
	}
	for _, partnerID := range payload.PartnerIDs {
		if partnerID == uuid.Nil {
			continue
		}
		notification := &models.Notification{
			RecipientID: partnerID,
			Type:        enums.NotificationTypeCalloutUpdate,
			Title:       "Callout cancelled",
			Message:     message,
			Link:        stringPtr(link),
		}
		if err := c.repo.Create(ctx, notification); err != nil {
			return err
		}
	}
	c.logg.Info(logCtx, "partners notified of cancellation")
	return nil
}

func (c *Consumer) notifySettlement(ctx context.Context, payload payloads.CalloutResolvedEvent, logCtx context.Context) error {
	if payload.PartnerID == uuid.Nil {
		return fmt.Errorf("partner id missing")
	}
	link := fmt.Sprintf("/callouts/%s", payload.CalloutID)
	notification := &models.Notification{
		RecipientID: payload.PartnerID,
		Type:        enums.NotificationTypeSettlementReady,
		Title:       "Settlement ready",
		Message: fmt.Sprintf("Job complete. Platform fee %s (%d%%), your earnings %s.",
			payload.FeeAmount.StringFixed(2), payload.FeePercent, payload.PartnerEarnings.StringFixed(2)),
		Link: stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "partner notified of settlement")
	return nil
}

// surfaceRequested materialises a notification another service asked for
// explicitly. The payload carries the finished copy; only the recipient and
// type need validating here.
func (c *Consumer) surfaceRequested(ctx context.Context, payload payloads.NotificationRequestedEvent, logCtx context.Context) error {
	if payload.RecipientID == uuid.Nil {
		return fmt.Errorf("recipient id missing")
	}
	kind := payload.Type
	if !kind.IsValid() {
		kind = enums.NotificationTypeSystem
	}
	notification := &models.Notification{
		RecipientID: payload.RecipientID,
		Type:        kind,
		Title:       payload.Title,
		Message:     payload.Body,
	}
	if payload.CalloutID != uuid.Nil {
		notification.Link = stringPtr(fmt.Sprintf("/callouts/%s", payload.CalloutID))
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "requested notification created")
	return nil
}

func stringPtr(value string) *string {
	return &value
}
