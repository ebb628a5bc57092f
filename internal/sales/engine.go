package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/internal/purchases/validation"
	"github.com/angelmondragon/foodrescue-backend/internal/staging"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/metrics"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/payloads"
)

const (
	defaultCodeAttempts = 10
	codeSavepoint       = "pickup_code"
)

// The postgres constraint name and the sqlite "table.column" target of the same index.
var pickupCodeConstraints = []string{"sells_pickup_code_key", "sells.pickup_code"}

// TxRunner runs fn inside a single database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter queues a domain event on the caller's transaction.
type OutboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type validator interface {
	Validate(ctx context.Context, reader validation.OfferReader, in validation.Input) error
}

// EngineParams wires the commit engine.
type EngineParams struct {
	DB             TxRunner
	Offers         offers.Repository
	Sales          Repository
	Establishments *establishments.Repository
	Outbox         OutboxEmitter
	Validators     validator
	Codes          CodeGenerator
	CodeAttempts   int
	Metrics        *metrics.PurchaseMetrics
	Logger         *logger.Logger
	Now            func() time.Time
}

// Engine turns a staged purchase into a committed sale.
type Engine struct {
	db             TxRunner
	offers         offers.Repository
	sales          Repository
	establishments *establishments.Repository
	outbox         OutboxEmitter
	validators     validator
	codes          CodeGenerator
	attempts       int
	metrics        *metrics.PurchaseMetrics
	logg           *logger.Logger
	now            func() time.Time
}

func NewEngine(p EngineParams) (*Engine, error) {
	if p.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Offers == nil {
		return nil, errors.New("offers repository required")
	}
	if p.Sales == nil {
		return nil, errors.New("sales repository required")
	}
	if p.Establishments == nil {
		return nil, errors.New("establishments repository required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if p.Validators == nil {
		p.Validators = validation.DefaultChain()
	}
	if p.Codes == nil {
		p.Codes = NewRandomCodes(nil)
	}
	if p.CodeAttempts <= 0 {
		p.CodeAttempts = defaultCodeAttempts
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		db:             p.DB,
		offers:         p.Offers,
		sales:          p.Sales,
		establishments: p.Establishments,
		outbox:         p.Outbox,
		validators:     p.Validators,
		codes:          p.Codes,
		attempts:       p.CodeAttempts,
		metrics:        p.Metrics,
		logg:           p.Logger,
		now:            p.Now,
	}, nil
}

// Commit revalidates the staged offers, decrements stock, records the sale
// and queues its notification, all in one transaction. Any failure leaves
// stock and sales untouched.
func (e *Engine) Commit(ctx context.Context, staged staging.StagedPurchase, buyerID uuid.UUID) (*models.Sale, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if len(staged.Offers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase has no offers")
	}

	started := time.Now()
	now := e.now()
	var (
		sale    *models.Sale
		soldOut []uuid.UUID
	)
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		offerRepo := e.offers.WithTx(tx)
		saleRepo := e.sales.WithTx(tx)

		locked, err := lockOffers(ctx, offerRepo, staged.Offers)
		if err != nil {
			return err
		}
		if err := e.validators.Validate(ctx, offerRepo, validation.Input{
			EstablishmentID: staged.EstablishmentID,
			Snapshots:       staged.Offers,
			Now:             now,
		}); err != nil {
			return err
		}

		deadline, emptied, err := e.reserveStock(ctx, offerRepo, staged.Offers, locked, now)
		if err != nil {
			return err
		}
		soldOut = emptied

		sale = buildSale(buyerID, staged, deadline)
		if err := e.insertWithUniqueCode(ctx, tx, saleRepo, sale); err != nil {
			return err
		}

		est, err := e.establishments.WithTx(tx).FindByID(ctx, staged.EstablishmentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load establishment")
		}
		sale.Establishment = est

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSaleCreated,
			AggregateType: enums.AggregateSale,
			AggregateID:   sale.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: enums.UserRoleCustomer},
			OccurredAt:    now,
			Data:          saleCreatedPayload(sale, est, staged.Offers, soldOut),
		})
	})
	if err != nil {
		err = asCommitError(err)
		e.metrics.IncFailure("buy", string(pkgerrors.As(err).Code()))
		return nil, err
	}

	e.metrics.IncCommitted()
	e.metrics.ObserveCommit(time.Since(started))
	if e.logg != nil {
		logCtx := e.logg.WithSaleID(ctx, sale.ID.String())
		logCtx = e.logg.WithFields(logCtx, map[string]any{
			"buyer_id":         buyerID.String(),
			"establishment_id": staged.EstablishmentID.String(),
			"offer_count":      len(staged.Offers),
			"total_price":      sale.TotalPrice.StringFixed(2),
			"sold_out_offers":  len(soldOut),
		})
		e.logg.Info(logCtx, "sale.committed")
	}
	return sale, nil
}

// lockOffers takes row locks on the staged offers in ascending id order so
// validation and the stock update see the same rows. Missing offers are left
// for the ownership check to report.
func lockOffers(ctx context.Context, repo offers.Repository, snapshots []offers.OfferSnapshot) (map[uuid.UUID]*models.Offer, error) {
	ids := offers.IDs(snapshots)
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})

	locked := make(map[uuid.UUID]*models.Offer, len(ids))
	for _, id := range ids {
		if _, ok := locked[id]; ok {
			continue
		}
		row, err := repo.LockForUpdate(ctx, id)
		if errors.Is(err, offers.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock offer")
		}
		locked[id] = row
	}
	return locked, nil
}

// reserveStock decrements each locked offer in ascending id order. It returns
// the earliest offer expiration and the offers left with no stock.
func (e *Engine) reserveStock(ctx context.Context, repo offers.Repository, snapshots []offers.OfferSnapshot, locked map[uuid.UUID]*models.Offer, now time.Time) (time.Time, []uuid.UUID, error) {
	ordered := make([]offers.OfferSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	var (
		deadline time.Time
		emptied  []uuid.UUID
	)
	for _, snap := range ordered {
		row, ok := locked[snap.ID]
		if !ok {
			return time.Time{}, nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found").
				WithDetails(map[string]any{"offer_id": snap.ID})
		}
		if err := purchasable(row, now); err != nil {
			return time.Time{}, nil, err
		}
		if row.Quantity < snap.Quantity {
			return time.Time{}, nil, insufficientStock(snap, row.Quantity)
		}
		ok, err := repo.DecrementStock(ctx, snap.ID, snap.Quantity)
		if err != nil {
			return time.Time{}, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return time.Time{}, nil, insufficientStock(snap, row.Quantity)
		}
		if row.Quantity == snap.Quantity {
			emptied = append(emptied, snap.ID)
		}
		if deadline.IsZero() || row.ExpirationDatetime.Before(deadline) {
			deadline = row.ExpirationDatetime
		}
	}
	return deadline.UTC(), emptied, nil
}

// purchasable re-reads state and expiration from the locked row.
func purchasable(row *models.Offer, now time.Time) error {
	if !row.State.IsPurchasable() {
		return pkgerrors.New(pkgerrors.CodeOfferNotActive, fmt.Sprintf("offer %q is not available", row.Title)).
			WithDetails(validation.Violation{
				OfferID:  row.ID,
				Field:    "state",
				Expected: enums.OfferStateActive,
				Actual:   row.State,
			})
	}
	if row.ExpirationDatetime.Before(now) {
		return pkgerrors.New(pkgerrors.CodeOfferExpired, fmt.Sprintf("offer %q has expired", row.Title)).
			WithDetails(validation.Violation{
				OfferID: row.ID,
				Field:   "expiration_datetime",
				Actual:  row.ExpirationDatetime.UTC(),
			})
	}
	return nil
}

func insufficientStock(snap offers.OfferSnapshot, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("not enough stock for offer %q", snap.Title)).
		WithDetails(validation.Violation{
			OfferID:  snap.ID,
			Field:    "quantity",
			Expected: snap.Quantity,
			Actual:   available,
		})
}

// insertWithUniqueCode draws pickup codes until one inserts cleanly. Each
// insert runs behind a savepoint so a collision does not poison the transaction.
func (e *Engine) insertWithUniqueCode(ctx context.Context, tx *gorm.DB, repo Repository, sale *models.Sale) error {
	for attempt := 1; attempt <= e.attempts; attempt++ {
		code, err := e.codes.Generate()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup code")
		}
		exists, err := repo.CodeExists(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pickup code")
		}
		if exists {
			e.metrics.IncCodeRetry()
			continue
		}

		sale.PickupCode = code
		if err := tx.SavePoint(codeSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err = repo.Create(ctx, sale)
		if err == nil {
			return nil
		}
		if !isPickupCodeCollision(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert sale")
		}
		if rbErr := tx.RollbackTo(codeSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback savepoint")
		}
		e.metrics.IncCodeRetry()
	}
	return pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique pickup code")
}

func isPickupCodeCollision(err error) bool {
	for _, name := range pickupCodeConstraints {
		if db.IsUniqueViolation(err, name) {
			return true
		}
	}
	return false
}

func buildSale(buyerID uuid.UUID, staged staging.StagedPurchase, deadline time.Time) *models.Sale {
	total := decimal.Zero
	details := make([]models.SaleDetail, 0, len(staged.Offers))
	for _, snap := range staged.Offers {
		total = total.Add(snap.Total())
		for _, p := range snap.Products {
			details = append(details, models.SaleDetail{
				OfferID:            snap.ID,
				OfferTitle:         snap.Title,
				OfferQuantity:      snap.Quantity,
				ProductQuantity:    p.Quantity,
				ProductPrice:       p.Price,
				ProductName:        p.Name,
				ProductDescription: p.Description,
			})
		}
	}
	return &models.Sale{
		BoughtBy:          buyerID,
		SoldBy:            staged.EstablishmentID,
		MaxPickupDatetime: deadline,
		TotalPrice:        total,
		Details:           details,
	}
}

func saleCreatedPayload(sale *models.Sale, est *models.Establishment, snapshots []offers.OfferSnapshot, soldOut []uuid.UUID) payloads.SaleCreatedEvent {
	lines := make([]payloads.SaleOfferLine, 0, len(snapshots))
	for _, snap := range snapshots {
		lines = append(lines, payloads.SaleOfferLine{OfferID: snap.ID, Title: snap.Title, Quantity: snap.Quantity})
	}
	return payloads.SaleCreatedEvent{
		SaleID:            sale.ID,
		BuyerID:           sale.BoughtBy,
		EstablishmentID:   est.ID,
		SellerUserID:      est.UserID,
		EstablishmentName: est.Name,
		PickupCode:        sale.PickupCode,
		MaxPickupDatetime: sale.MaxPickupDatetime,
		TotalPrice:        sale.TotalPrice,
		Offers:            lines,
		SoldOutOfferIDs:   soldOut,
	}
}

func asCommitError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit canceled")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "commit sale")
}
