package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSaleCreated(t *testing.T) {
	reg := NewEventRegistry()

	saleID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.SaleCreatedEvent{
		SaleID:     saleID,
		BuyerID:    uuid.New(),
		PickupCode: "ABCD-EFGH-JKLM",
	})

	event := models.OutboxEvent{
		EventType:     enums.EventSaleCreated,
		AggregateType: enums.AggregateSale,
		AggregateID:   saleID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.EventType != enums.EventSaleCreated {
		t.Fatalf("unexpected event type %s", resolved.Descriptor.EventType)
	}
	payload, ok := resolved.Payload.(*payloads.SaleCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.SaleID != saleID || payload.PickupCode != "ABCD-EFGH-JKLM" {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejections(t *testing.T) {
	reg := NewEventRegistry()

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("sale_refunded"),
			AggregateType: enums.AggregateSale,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventSaleCreated,
			AggregateType: enums.AggregateOffer,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventSalePickedUp,
			AggregateType: enums.AggregateSale,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOfferExpired,
			AggregateType: enums.AggregateOffer,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventSaleCreated,
			AggregateType: enums.AggregateSale,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := NewEventRegistry()
	if got := len(reg.EventTypes()); got != 3 {
		t.Fatalf("expected 3 registered events, got %d", got)
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
