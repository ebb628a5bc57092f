package offers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

// OfferRequest names an offer and how many units of it the buyer wants.
type OfferRequest struct {
	OfferID  uuid.UUID `json:"id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

// Builder captures offer snapshots from live data. It never mutates anything.
type Builder struct {
	repo Repository
	now  func() time.Time
}

// NewBuilder wires the snapshot builder.
func NewBuilder(repo Repository) (*Builder, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "offers repository required")
	}
	return &Builder{repo: repo, now: time.Now}, nil
}

// Build snapshots one offer. The requested quantity is carried through without
// consulting stock; validators do that.
func (b *Builder) Build(ctx context.Context, offerID uuid.UUID, requestedQuantity int) (OfferSnapshot, error) {
	offer, err := b.repo.Find(ctx, offerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OfferSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found").
				WithDetails(map[string]any{"offer_id": offerID})
		}
		return OfferSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}

	lines, err := b.repo.ProductLines(ctx, offer.ID)
	if err != nil {
		return OfferSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer products")
	}

	products := make([]ProductSnapshot, 0, len(lines))
	for _, line := range lines {
		products = append(products, ProductSnapshot{
			ProductID:   line.ProductID,
			Name:        line.Name,
			Description: line.Description,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}

	snapshot, err := NewOfferSnapshot(
		offer.ID,
		offer.FoodEstablishmentID,
		offer.Title,
		offer.Description,
		requestedQuantity,
		offer.ExpirationDatetime,
		products,
		b.now(),
	)
	if err != nil {
		return OfferSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]any{"offer_id": offerID})
	}
	return snapshot, nil
}

// BuildAll snapshots every requested offer, in request order.
func (b *Builder) BuildAll(ctx context.Context, requests []OfferRequest) ([]OfferSnapshot, error) {
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one offer is required")
	}

	seen := make(map[uuid.UUID]struct{}, len(requests))
	snapshots := make([]OfferSnapshot, 0, len(requests))
	for _, req := range requests {
		if _, dup := seen[req.OfferID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("offer %s requested more than once", req.OfferID))
		}
		seen[req.OfferID] = struct{}{}

		snapshot, err := b.Build(ctx, req.OfferID, req.Quantity)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
