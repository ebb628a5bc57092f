package validation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

// Expiration fails OFFER_EXPIRED when an offer's live expiration is already past.
type Expiration struct{}

func (Expiration) Name() string { return "expiration" }

func (Expiration) Validate(ctx context.Context, reader OfferReader, in Input) error {
	rows, err := liveOffers(ctx, reader, in.Snapshots)
	if err != nil {
		return err
	}
	for _, s := range in.Snapshots {
		live := rows[s.ID]
		if live.ExpirationDatetime.Before(in.Now) {
			return violation(pkgerrors.CodeOfferExpired, fmt.Sprintf("offer %q has expired", live.Title), Violation{
				OfferID: s.ID,
				Field:   "expiration_datetime",
				Actual:  live.ExpirationDatetime.UTC(),
			})
		}
	}
	return nil
}

// ActiveState fails OFFER_NOT_ACTIVE when an offer is not in the active state.
type ActiveState struct{}

func (ActiveState) Name() string { return "active_state" }

func (ActiveState) Validate(ctx context.Context, reader OfferReader, in Input) error {
	rows, err := liveOffers(ctx, reader, in.Snapshots)
	if err != nil {
		return err
	}
	for _, s := range in.Snapshots {
		live := rows[s.ID]
		if !live.State.IsPurchasable() {
			return violation(pkgerrors.CodeOfferNotActive, fmt.Sprintf("offer %q is not available", live.Title), Violation{
				OfferID:  s.ID,
				Field:    "state",
				Expected: enums.OfferStateActive,
				Actual:   live.State,
			})
		}
	}
	return nil
}

// Ownership fails OFFER_ESTABLISHMENT_MISMATCH unless every requested offer
// exists and belongs to the declared establishment. One count query covers both.
type Ownership struct{}

func (Ownership) Name() string { return "ownership" }

func (Ownership) Validate(ctx context.Context, reader OfferReader, in Input) error {
	if in.EstablishmentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "establishment id required")
	}
	ids := uniqueIDs(in.Snapshots)
	count, err := reader.CountOwned(ctx, ids, in.EstablishmentID)
	if err != nil {
		return readFailure(err, "count establishment offers")
	}
	if count != int64(len(ids)) {
		return pkgerrors.New(pkgerrors.CodeOfferEstablishmentMismatch, "offers do not all belong to the establishment").
			WithDetails(map[string]any{
				"establishment_id": in.EstablishmentID,
				"expected":         len(ids),
				"actual":           count,
			})
	}
	return nil
}

func uniqueIDs(snapshots []offers.OfferSnapshot) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(snapshots))
	ids := make([]uuid.UUID, 0, len(snapshots))
	for _, s := range snapshots {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		ids = append(ids, s.ID)
	}
	return ids
}
