package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeCalloutInvite   NotificationType = "callout_invite"
	NotificationTypeCalloutUpdate   NotificationType = "callout_update"
	NotificationTypeCalloutOutcome  NotificationType = "callout_outcome"
	NotificationTypeSettlementReady NotificationType = "settlement_ready"
	NotificationTypeSystem          NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeCalloutInvite,
	NotificationTypeCalloutUpdate,
	NotificationTypeCalloutOutcome,
	NotificationTypeSettlementReady,
	NotificationTypeSystem,
}

// IsValid reports whether the value matches the canonical notification_type enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
