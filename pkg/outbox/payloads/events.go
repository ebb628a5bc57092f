package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleCreatedEvent is queued when a sale commits. Buyer and seller are both notified.
type SaleCreatedEvent struct {
	SaleID            uuid.UUID       `json:"sale_id"`
	BuyerID           uuid.UUID       `json:"buyer_id"`
	EstablishmentID   uuid.UUID       `json:"establishment_id"`
	SellerUserID      uuid.UUID       `json:"seller_user_id"`
	EstablishmentName string          `json:"establishment_name"`
	PickupCode        string          `json:"pickup_code"`
	MaxPickupDatetime time.Time       `json:"max_pickup_datetime"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Offers            []SaleOfferLine `json:"offers"`
	SoldOutOfferIDs   []uuid.UUID     `json:"sold_out_offer_ids,omitempty"`
}

// SaleOfferLine summarises one purchased offer.
type SaleOfferLine struct {
	OfferID  uuid.UUID `json:"offer_id"`
	Title    string    `json:"title"`
	Quantity int       `json:"quantity"`
}

// SalePickedUpEvent is queued when a seller completes the handover.
type SalePickedUpEvent struct {
	SaleID          uuid.UUID `json:"sale_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	SellerUserID    uuid.UUID `json:"seller_user_id"`
	PickedUpAt      time.Time `json:"picked_up_at"`
}

// OfferExpiredEvent is queued by the expiry sweep for each offer it deactivates.
type OfferExpiredEvent struct {
	OfferID            uuid.UUID `json:"offer_id"`
	EstablishmentID    uuid.UUID `json:"establishment_id"`
	SellerUserID       uuid.UUID `json:"seller_user_id"`
	Title              string    `json:"title"`
	RemainingQuantity  int       `json:"remaining_quantity"`
	ExpirationDatetime time.Time `json:"expiration_datetime"`
}
