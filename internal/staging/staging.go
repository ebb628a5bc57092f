// Package staging keeps prepared purchases between prepare-purchase and
// buy-offers. Entries are short-lived and single-use; losing one only forces
// the buyer to prepare again.
package staging

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

const (
	DefaultTTL = 5 * time.Minute
	tokenBytes = 32
)

// Store holds staged purchases keyed by an opaque token.
type Store interface {
	// Stage stores the purchase under a fresh token and returns the token.
	Stage(ctx context.Context, purchase StagedPurchase) (string, error)
	// Retrieve reads a purchase without consuming it.
	Retrieve(ctx context.Context, token string) (StagedPurchase, error)
	// ConsumeIfFresh removes the purchase and returns it if it has not expired.
	// Concurrent calls for one token succeed at most once.
	ConsumeIfFresh(ctx context.Context, token string) (StagedPurchase, error)
}

// StagedPurchase is a validated set of offer snapshots awaiting confirmation.
type StagedPurchase struct {
	Token           string                 `json:"token"`
	BuyerID         uuid.UUID              `json:"buyerId"`
	EstablishmentID uuid.UUID              `json:"establishmentId"`
	Offers          []offers.OfferSnapshot `json:"offers"`
	CreatedAt       time.Time              `json:"createdAt"`
	ExpiresAt       time.Time              `json:"expiresAt"`
}

// NewStagedPurchase validates the purchase shape and stamps its expiry.
func NewStagedPurchase(buyerID, establishmentID uuid.UUID, snapshots []offers.OfferSnapshot, createdAt time.Time, ttl time.Duration) (StagedPurchase, error) {
	if buyerID == uuid.Nil {
		return StagedPurchase{}, errors.New("staged purchase requires a buyer")
	}
	if establishmentID == uuid.Nil {
		return StagedPurchase{}, errors.New("staged purchase requires an establishment")
	}
	if len(snapshots) == 0 {
		return StagedPurchase{}, errors.New("staged purchase requires at least one offer")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	copied := make([]offers.OfferSnapshot, len(snapshots))
	copy(copied, snapshots)
	created := createdAt.UTC()
	return StagedPurchase{
		BuyerID:         buyerID,
		EstablishmentID: establishmentID,
		Offers:          copied,
		CreatedAt:       created,
		ExpiresAt:       created.Add(ttl),
	}, nil
}

// IsExpired reports whether now is past the expiry. The expiry instant itself is still valid.
func (p StagedPurchase) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Total sums every offer's total.
func (p StagedPurchase) Total() decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.Offers {
		total = total.Add(o.Total())
	}
	return total
}

// NewToken returns 32 random bytes, base64url encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func errTokenInvalid() error {
	return pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token is invalid or was already used")
}

func errTokenExpired() error {
	return pkgerrors.New(pkgerrors.CodeTokenExpired, "purchase token has expired, prepare the purchase again")
}

func checkStageable(p StagedPurchase) error {
	if p.ExpiresAt.IsZero() || len(p.Offers) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "staged purchase is incomplete")
	}
	return nil
}

// Option tunes a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	grace time.Duration
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithGrace keeps expired entries around for d so they report TOKEN_EXPIRED
// rather than TOKEN_INVALID.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.grace = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, grace: 10 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
