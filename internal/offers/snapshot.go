package offers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshot freezes one product of an offer as the customer saw it.
type ProductSnapshot struct {
	ProductID   uuid.UUID       `json:"productId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// ContentHash identifies a product by name and description. Product ids are
// not treated as stable across seller edits, so freshness checks match on this.
func (p ProductSnapshot) ContentHash() string {
	return ContentHash(p.Name, p.Description)
}

// Subtotal is price times the pivot quantity.
func (p ProductSnapshot) Subtotal() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ContentHash hashes a product name and description.
func ContentHash(name, description string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + description))
	return hex.EncodeToString(sum[:])
}

// OfferSnapshot is the immutable record of an offer at preparation time.
// Quantity is the number of offer units requested, not the stock on hand.
type OfferSnapshot struct {
	ID                 uuid.UUID         `json:"id"`
	EstablishmentID    uuid.UUID         `json:"establishmentId"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Quantity           int               `json:"quantity"`
	ExpirationDatetime time.Time         `json:"expirationDatetime"`
	Products           []ProductSnapshot `json:"products"`
	CapturedAt         time.Time         `json:"capturedAt"`
}

var (
	errSnapshotID       = errors.New("offer snapshot requires an offer id")
	errSnapshotQuantity = errors.New("offer snapshot requires a positive quantity")
	errSnapshotProducts = errors.New("offer snapshot requires at least one product")
)

// NewOfferSnapshot validates and assembles a snapshot. The product slice is copied.
func NewOfferSnapshot(id, establishmentID uuid.UUID, title, description string, quantity int, expiresAt time.Time, products []ProductSnapshot, capturedAt time.Time) (OfferSnapshot, error) {
	if id == uuid.Nil {
		return OfferSnapshot{}, errSnapshotID
	}
	if quantity <= 0 {
		return OfferSnapshot{}, errSnapshotQuantity
	}
	if len(products) == 0 {
		return OfferSnapshot{}, errSnapshotProducts
	}
	copied := make([]ProductSnapshot, len(products))
	copy(copied, products)
	return OfferSnapshot{
		ID:                 id,
		EstablishmentID:    establishmentID,
		Title:              title,
		Description:        description,
		Quantity:           quantity,
		ExpirationDatetime: expiresAt.UTC(),
		Products:           copied,
		CapturedAt:         capturedAt.UTC(),
	}, nil
}

// LinePrice is the price of one offer unit: the sum of price times quantity over its products.
func (o OfferSnapshot) LinePrice() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Products {
		total = total.Add(p.Subtotal())
	}
	return total
}

// Total is the line price times the requested quantity.
func (o OfferSnapshot) Total() decimal.Decimal {
	return o.LinePrice().Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// IDs returns the offer ids of snapshots in order.
func IDs(snapshots []OfferSnapshot) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(snapshots))
	for _, s := range snapshots {
		ids = append(ids, s.ID)
	}
	return ids
}
