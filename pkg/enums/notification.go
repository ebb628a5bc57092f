package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypePickupCode   NotificationType = "pickup_code"
	NotificationTypeNewSale      NotificationType = "new_sale"
	NotificationTypeSalePickedUp NotificationType = "sale_picked_up"
	NotificationTypeOfferSoldOut NotificationType = "offer_sold_out"
	NotificationTypeOfferExpired NotificationType = "offer_expired"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePickupCode,
	NotificationTypeNewSale,
	NotificationTypeSalePickedUp,
	NotificationTypeOfferSoldOut,
	NotificationTypeOfferExpired,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
