package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
)

// SaleView is the API shape of a sale with its offers regrouped from the flat detail rows.
type SaleView struct {
	ID                uuid.UUID               `json:"id"`
	BuyerID           uuid.UUID               `json:"buyerId"`
	EstablishmentID   uuid.UUID               `json:"establishmentId"`
	PickupCode        string                  `json:"pickupCode,omitempty"`
	IsPickedUp        bool                    `json:"isPickedUp"`
	PickedUpAt        *time.Time              `json:"pickedUpAt,omitempty"`
	MaxPickupDatetime time.Time               `json:"maxPickupDatetime"`
	TotalPrice        decimal.Decimal         `json:"totalPrice"`
	CreatedAt         time.Time               `json:"createdAt"`
	Establishment     *establishments.Summary `json:"establishment,omitempty"`
	Offers            []OfferLineView         `json:"offers"`
}

type OfferLineView struct {
	OfferID  uuid.UUID         `json:"offerId"`
	Title    string            `json:"title"`
	Quantity int               `json:"quantity"`
	Products []ProductLineView `json:"products"`
}

type ProductLineView struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// PurchasePage is one page of a buyer's open purchases.
type PurchasePage struct {
	Items      []SaleView `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// PickupCodeView is what the buyer shows at the counter.
type PickupCodeView struct {
	SaleID            uuid.UUID               `json:"saleId"`
	PickupCode        string                  `json:"pickupCode"`
	MaxPickupDatetime time.Time               `json:"maxPickupDatetime"`
	IsPickedUp        bool                    `json:"isPickedUp"`
	Establishment     *establishments.Summary `json:"establishment,omitempty"`
}

// ViewOf maps a sale row. The pickup code is only included when withCode is set.
func ViewOf(sale *models.Sale, withCode bool) SaleView {
	view := SaleView{
		ID:                sale.ID,
		BuyerID:           sale.BoughtBy,
		EstablishmentID:   sale.SoldBy,
		IsPickedUp:        sale.IsPickedUp,
		PickedUpAt:        sale.PickedUpAt,
		MaxPickupDatetime: sale.MaxPickupDatetime,
		TotalPrice:        sale.TotalPrice,
		CreatedAt:         sale.CreatedAt,
		Establishment:     establishments.SummaryFromModel(sale.Establishment),
		Offers:            groupDetails(sale.Details),
	}
	if withCode {
		view.PickupCode = sale.PickupCode
	}
	return view
}

func groupDetails(details []models.SaleDetail) []OfferLineView {
	out := make([]OfferLineView, 0)
	index := make(map[uuid.UUID]int)
	for _, d := range details {
		i, ok := index[d.OfferID]
		if !ok {
			i = len(out)
			index[d.OfferID] = i
			out = append(out, OfferLineView{OfferID: d.OfferID, Title: d.OfferTitle, Quantity: d.OfferQuantity})
		}
		out[i].Products = append(out[i].Products, ProductLineView{
			Name:        d.ProductName,
			Description: d.ProductDescription,
			Quantity:    d.ProductQuantity,
			Price:       d.ProductPrice,
		})
	}
	return out
}
