// Package validation holds the purchase validators. They run once when a
// purchase is prepared and again inside the commit transaction.
package validation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

// OfferReader is the live-data view validators compare snapshots against. Bind
// it to the commit transaction so checks and writes see the same rows.
type OfferReader interface {
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error)
	ProductLines(ctx context.Context, offerID uuid.UUID) ([]offers.ProductLine, error)
	CountOwned(ctx context.Context, ids []uuid.UUID, establishmentID uuid.UUID) (int64, error)
}

// Input is what every validator inspects.
type Input struct {
	EstablishmentID uuid.UUID
	Snapshots       []offers.OfferSnapshot
	Now             time.Time
}

// Validator checks one purchase precondition.
type Validator interface {
	Name() string
	Validate(ctx context.Context, reader OfferReader, in Input) error
}

// Violation is attached as error details so callers can explain the failure.
type Violation struct {
	OfferID  uuid.UUID `json:"offer_id"`
	Field    string    `json:"field"`
	Expected any       `json:"expected,omitempty"`
	Actual   any       `json:"actual,omitempty"`
}

func violation(code pkgerrors.Code, message string, v Violation) error {
	return pkgerrors.New(code, message).WithDetails(v)
}

func readFailure(err error, what string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, what)
}

// Chain runs validators in order and stops at the first failure.
type Chain struct {
	validators []Validator
}

// NewChain builds a chain from the given validators.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// DefaultChain runs ownership, expiration, active-state and freshness, in that order.
func DefaultChain() *Chain {
	return NewChain(Ownership{}, Expiration{}, ActiveState{}, Freshness{})
}

// Validate returns the first validator error. An empty snapshot set is rejected.
func (c *Chain) Validate(ctx context.Context, reader OfferReader, in Input) error {
	if reader == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "offer reader required")
	}
	if len(in.Snapshots) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase has no offers")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	for _, v := range c.validators {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validation canceled")
		}
		if err := v.Validate(ctx, reader, in); err != nil {
			return err
		}
	}
	return nil
}

// liveOffers loads every snapshot's offer and fails NOT_FOUND for any that vanished.
func liveOffers(ctx context.Context, reader OfferReader, snapshots []offers.OfferSnapshot) (map[uuid.UUID]models.Offer, error) {
	rows, err := reader.FindMany(ctx, offers.IDs(snapshots))
	if err != nil {
		return nil, readFailure(err, "load offers")
	}
	for _, s := range snapshots {
		if _, ok := rows[s.ID]; !ok {
			return nil, violation(pkgerrors.CodeNotFound, "offer not found", Violation{OfferID: s.ID, Field: "id"})
		}
	}
	return rows, nil
}
