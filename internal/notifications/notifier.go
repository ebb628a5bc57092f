package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const (
	saleNotificationsConsumer   = "sale-notifications"
	pickupNotificationsConsumer = "pickup-notifications"
	expiryNotificationsConsumer = "expiry-notifications"

	pickupDeadlineLayout = "Mon 02 Jan 15:04 MST"
)

// Notifier turns sale and offer events into in-app notifications for buyers
// and sellers. Delivery is best effort: a failure here never touches the sale.
type Notifier struct {
	repo        Repository
	idempotency *idempotency.Manager
	logg        *logger.Logger
}

// NewNotifier builds the outbox handler for notification events.
func NewNotifier(repo Repository, manager *idempotency.Manager, logg *logger.Logger) (*Notifier, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Notifier{
		repo:        repo,
		idempotency: manager,
		logg:        logg,
	}, nil
}

// EventTypes lists the events Handle accepts.
func (n *Notifier) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventSaleCreated,
		enums.EventSalePickedUp,
		enums.EventOfferExpired,
	}
}

// Handle stores the notifications for one resolved outbox event. A redelivered
// event is skipped.
func (n *Notifier) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	if event == nil {
		return registry.NewNonRetryableError(errors.New("event required"))
	}
	consumer, ok := consumerFor(event.Descriptor.EventType)
	if !ok {
		return registry.NewNonRetryableError(fmt.Errorf("notifier does not handle %s", event.Descriptor.EventType))
	}
	eventID, err := uuid.Parse(event.Envelope.EventID)
	if err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("invalid event id: %w", err))
	}

	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event_id":   eventID.String(),
		"event_type": event.Descriptor.EventType,
		"consumer":   consumer,
	})

	rows, err := build(event.Payload)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}

	already, err := n.idempotency.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		n.logg.Info(logCtx, "event already processed")
		return nil
	}

	if err := n.repo.CreateMany(ctx, rows); err != nil {
		if delErr := n.idempotency.Delete(ctx, consumer, eventID); delErr != nil {
			n.logg.Error(logCtx, "failed to clear idempotency mark", delErr)
		}
		return fmt.Errorf("store notifications: %w", err)
	}

	n.logg.Info(n.logg.WithField(logCtx, "notifications", len(rows)), "notifications created")
	return nil
}

func consumerFor(eventType enums.OutboxEventType) (string, bool) {
	switch eventType {
	case enums.EventSaleCreated:
		return saleNotificationsConsumer, true
	case enums.EventSalePickedUp:
		return pickupNotificationsConsumer, true
	case enums.EventOfferExpired:
		return expiryNotificationsConsumer, true
	default:
		return "", false
	}
}

func build(payload any) ([]models.Notification, error) {
	switch p := payload.(type) {
	case *payloads.SaleCreatedEvent:
		return saleCreated(p)
	case *payloads.SalePickedUpEvent:
		return salePickedUp(p)
	case *payloads.OfferExpiredEvent:
		return offerExpired(p)
	default:
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
}

func saleCreated(p *payloads.SaleCreatedEvent) ([]models.Notification, error) {
	if p.SaleID == uuid.Nil || p.BuyerID == uuid.Nil || p.SellerUserID == uuid.Nil {
		return nil, fmt.Errorf("sale_created payload missing ids")
	}
	saleID := p.SaleID
	units := 0
	for _, line := range p.Offers {
		units += line.Quantity
	}

	rows := []models.Notification{
		{
			UserID: p.BuyerID,
			Type:   enums.NotificationTypePickupCode,
			Title:  "Your pickup code",
			Message: fmt.Sprintf("Show code %s at %s before %s.",
				p.PickupCode, p.EstablishmentName, p.MaxPickupDatetime.UTC().Format(pickupDeadlineLayout)),
			Link:     stringPtr(fmt.Sprintf("/purchases/%s/code", saleID)),
			SourceID: &saleID,
		},
		{
			UserID:   p.SellerUserID,
			Type:     enums.NotificationTypeNewSale,
			Title:    "New sale",
			Message:  fmt.Sprintf("A customer bought %d item(s) for %s.", units, p.TotalPrice.StringFixed(2)),
			Link:     stringPtr(fmt.Sprintf("/sales/%s", saleID)),
			SourceID: &saleID,
		},
	}

	titles := make(map[uuid.UUID]string, len(p.Offers))
	for _, line := range p.Offers {
		titles[line.OfferID] = line.Title
	}
	for _, offerID := range p.SoldOutOfferIDs {
		offerID := offerID
		rows = append(rows, models.Notification{
			UserID:   p.SellerUserID,
			Type:     enums.NotificationTypeOfferSoldOut,
			Title:    "Offer sold out",
			Message:  fmt.Sprintf("%q has no units left.", titles[offerID]),
			Link:     stringPtr(fmt.Sprintf("/offers/%s", offerID)),
			SourceID: &offerID,
		})
	}
	return rows, nil
}

func salePickedUp(p *payloads.SalePickedUpEvent) ([]models.Notification, error) {
	if p.SaleID == uuid.Nil || p.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("sale_picked_up payload missing ids")
	}
	saleID := p.SaleID
	rows := []models.Notification{{
		UserID:   p.BuyerID,
		Type:     enums.NotificationTypeSalePickedUp,
		Title:    "Order collected",
		Message:  "Thanks for rescuing food. Your order was handed over.",
		Link:     stringPtr(fmt.Sprintf("/purchases/%s", saleID)),
		SourceID: &saleID,
	}}
	if p.SellerUserID != uuid.Nil {
		rows = append(rows, models.Notification{
			UserID:   p.SellerUserID,
			Type:     enums.NotificationTypeSalePickedUp,
			Title:    "Sale completed",
			Message:  fmt.Sprintf("Sale %s was picked up.", saleID),
			Link:     stringPtr(fmt.Sprintf("/sales/%s", saleID)),
			SourceID: &saleID,
		})
	}
	return rows, nil
}

func offerExpired(p *payloads.OfferExpiredEvent) ([]models.Notification, error) {
	if p.OfferID == uuid.Nil || p.SellerUserID == uuid.Nil {
		return nil, fmt.Errorf("offer_expired payload missing ids")
	}
	offerID := p.OfferID
	return []models.Notification{{
		UserID:   p.SellerUserID,
		Type:     enums.NotificationTypeOfferExpired,
		Title:    "Offer expired",
		Message:  fmt.Sprintf("%q expired with %d unit(s) unsold.", p.Title, p.RemainingQuantity),
		Link:     stringPtr(fmt.Sprintf("/offers/%s", offerID)),
		SourceID: &offerID,
	}}, nil
}

func stringPtr(value string) *string {
	return &value
}
