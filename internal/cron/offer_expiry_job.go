package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/payloads"
)

const (
	defaultExpiryBatchSize = 200
	maxExpiryBatchesPerRun = 10
)

type OfferExpiryJobParams struct {
	Logger         *logger.Logger
	DB             txRunner
	Offers         offers.Repository
	Establishments *establishments.Repository
	Outbox         idempotentEmitter
	BatchSize      int
}

type idempotentEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NewOfferExpiryJob builds the sweep that retires active offers past their
// expiration and queues one offer_expired event per offer.
func NewOfferExpiryJob(params OfferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers repository required")
	}
	if params.Establishments == nil {
		return nil, fmt.Errorf("establishments repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &offerExpiryJob{
		logg:           params.Logger,
		db:             params.DB,
		offers:         params.Offers,
		establishments: params.Establishments,
		outbox:         params.Outbox,
		batchSize:      batch,
		now:            time.Now,
	}, nil
}

type offerExpiryJob struct {
	logg           *logger.Logger
	db             txRunner
	offers         offers.Repository
	establishments *establishments.Repository
	outbox         idempotentEmitter
	batchSize      int
	now            func() time.Time
}

func (j *offerExpiryJob) Name() string { return "offer-expiry" }

func (j *offerExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	total := 0
	for round := 0; round < maxExpiryBatchesPerRun; round++ {
		n, err := j.expireBatch(ctx, now)
		if err != nil {
			return fmt.Errorf("offer expiry: %w", err)
		}
		total += n
		if n < j.batchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":          now,
		"offers_expired": total,
		"batch_size":     j.batchSize,
	})
	j.logg.Info(logCtx, "offer expiry sweep complete")
	return nil
}

// expireBatch deactivates one batch and queues its events in the same transaction.
func (j *offerExpiryJob) expireBatch(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.offers.WithTx(tx).DeactivateExpired(ctx, now, j.batchSize)
		if err != nil {
			return fmt.Errorf("deactivate expired offers: %w", err)
		}
		sellers := make(map[uuid.UUID]uuid.UUID)
		estRepo := j.establishments.WithTx(tx)
		for _, offer := range rows {
			seller, ok := sellers[offer.FoodEstablishmentID]
			if !ok {
				est, err := estRepo.FindByID(ctx, offer.FoodEstablishmentID)
				if err != nil && !errors.Is(err, establishments.ErrNotFound) {
					return fmt.Errorf("load establishment %s: %w", offer.FoodEstablishmentID, err)
				}
				if est != nil {
					seller = est.UserID
				}
				sellers[offer.FoodEstablishmentID] = seller
			}
			if err := j.outbox.EmitIfNotExists(ctx, tx, expiredEvent(offer, seller, now)); err != nil {
				return fmt.Errorf("queue offer_expired %s: %w", offer.ID, err)
			}
		}
		expired = len(rows)
		return nil
	})
	return expired, err
}

func expiredEvent(offer models.Offer, seller uuid.UUID, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOfferExpired,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		OccurredAt:    now,
		Data: payloads.OfferExpiredEvent{
			OfferID:            offer.ID,
			EstablishmentID:    offer.FoodEstablishmentID,
			SellerUserID:       seller,
			Title:              offer.Title,
			RemainingQuantity:  offer.Quantity,
			ExpirationDatetime: offer.ExpirationDatetime.UTC(),
		},
	}
}
