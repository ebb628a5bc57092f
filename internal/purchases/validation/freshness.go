package validation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

// PriceTolerance is the largest price drift that still counts as unchanged.
var PriceTolerance = decimal.RequireFromString("0.001")

// Freshness fails STALE_DATA when live offer data no longer matches the snapshot.
// The error message names the first drifted field.
type Freshness struct{}

func (Freshness) Name() string { return "freshness" }

func (Freshness) Validate(ctx context.Context, reader OfferReader, in Input) error {
	rows, err := liveOffers(ctx, reader, in.Snapshots)
	if err != nil {
		return err
	}
	for _, s := range in.Snapshots {
		live := rows[s.ID]
		switch {
		case live.Title != s.Title:
			return stale(s, "title", "title changed", s.Title, live.Title)
		case live.Description != s.Description:
			return stale(s, "description", "description changed", s.Description, live.Description)
		case live.FoodEstablishmentID != s.EstablishmentID:
			return stale(s, "establishment_id", "establishment changed", s.EstablishmentID, live.FoodEstablishmentID)
		}

		lines, err := reader.ProductLines(ctx, s.ID)
		if err != nil {
			return readFailure(err, "load offer products")
		}
		if err := compareProducts(s, lines); err != nil {
			return err
		}
	}
	return nil
}

// compareProducts matches snapshot products to live rows by content hash. A
// hash may repeat, so live rows are consumed as they are matched.
func compareProducts(s offers.OfferSnapshot, lines []offers.ProductLine) error {
	pool := make(map[string][]offers.ProductLine, len(lines))
	for _, line := range lines {
		h := offers.ContentHash(line.Name, line.Description)
		pool[h] = append(pool[h], line)
	}

	for _, p := range s.Products {
		h := p.ContentHash()
		candidates := pool[h]
		if len(candidates) == 0 {
			return stale(s, "products", fmt.Sprintf("product removed: %s", p.Name), p.Name, nil)
		}
		live := candidates[0]
		pool[h] = candidates[1:]

		if live.Price.Sub(p.Price).Abs().GreaterThan(PriceTolerance) {
			return stale(s, "price", fmt.Sprintf("price changed for %s", p.Name), p.Price.String(), live.Price.String())
		}
		if live.Quantity != p.Quantity {
			return stale(s, "quantity", fmt.Sprintf("quantity changed for %s", p.Name), p.Quantity, live.Quantity)
		}
	}

	for _, line := range lines {
		h := offers.ContentHash(line.Name, line.Description)
		if len(pool[h]) > 0 {
			return stale(s, "products", fmt.Sprintf("product added: %s", line.Name), nil, line.Name)
		}
	}
	return nil
}

func stale(s offers.OfferSnapshot, field, reason string, expected, actual any) error {
	return violation(pkgerrors.CodeStaleData, fmt.Sprintf("offer %q changed: %s", s.Title, reason), Violation{
		OfferID:  s.ID,
		Field:    field,
		Expected: expected,
		Actual:   actual,
	})
}
