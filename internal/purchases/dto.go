package purchases

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
)

// PrepareRequest is the prepare-purchase body.
type PrepareRequest struct {
	EstablishmentID uuid.UUID             `json:"establishmentId" validate:"required"`
	Offers          []offers.OfferRequest `json:"offers" validate:"required,min=1,dive"`
}

// PrepareResult is returned to the buyer to confirm with buy-offers.
type PrepareResult struct {
	PurchaseToken   string                 `json:"purchaseToken"`
	Offers          []offers.OfferSnapshot `json:"offers"`
	TotalOffers     int                    `json:"totalOffers"`
	TotalPrice      decimal.Decimal        `json:"totalPrice"`
	EstablishmentID uuid.UUID              `json:"establishmentId"`
	ExpiresAt       time.Time              `json:"expiresAt"`
}

// BuyRequest is the buy-offers body.
type BuyRequest struct {
	PurchaseToken string `json:"purchaseToken" validate:"required"`
}

// BuyResult describes the committed sale.
type BuyResult struct {
	Message       string                  `json:"message"`
	Sale          sales.SaleView          `json:"sale"`
	Establishment *establishments.Summary `json:"establishment,omitempty"`
}
