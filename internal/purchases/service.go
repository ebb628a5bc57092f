// Package purchases runs the two customer steps of a purchase: prepare, which
// snapshots and stages the requested offers, and buy, which commits them.
package purchases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/internal/purchases/validation"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/internal/staging"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/metrics"
)

const defaultMaxOffers = 20

type snapshotBuilder interface {
	BuildAll(ctx context.Context, requests []offers.OfferRequest) ([]offers.OfferSnapshot, error)
}

type validator interface {
	Validate(ctx context.Context, reader validation.OfferReader, in validation.Input) error
}

type committer interface {
	Commit(ctx context.Context, staged staging.StagedPurchase, buyerID uuid.UUID) (*models.Sale, error)
}

type ServiceParams struct {
	Builder    snapshotBuilder
	Offers     validation.OfferReader
	Validators validator
	Staging    staging.Store
	Engine     committer
	TTL        time.Duration
	MaxOffers  int
	Metrics    *metrics.PurchaseMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type Service struct {
	builder    snapshotBuilder
	offers     validation.OfferReader
	validators validator
	staging    staging.Store
	engine     committer
	ttl        time.Duration
	maxOffers  int
	metrics    *metrics.PurchaseMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Builder == nil {
		return nil, errors.New("snapshot builder required")
	}
	if p.Offers == nil {
		return nil, errors.New("offer reader required")
	}
	if p.Staging == nil {
		return nil, errors.New("staging store required")
	}
	if p.Engine == nil {
		return nil, errors.New("commit engine required")
	}
	if p.Validators == nil {
		p.Validators = validation.DefaultChain()
	}
	if p.TTL <= 0 {
		p.TTL = staging.DefaultTTL
	}
	if p.MaxOffers <= 0 {
		p.MaxOffers = defaultMaxOffers
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		builder:    p.Builder,
		offers:     p.Offers,
		validators: p.Validators,
		staging:    p.Staging,
		engine:     p.Engine,
		ttl:        p.TTL,
		maxOffers:  p.MaxOffers,
		metrics:    p.Metrics,
		logg:       p.Logger,
		now:        p.Now,
	}, nil
}

// Prepare snapshots the requested offers, validates them and stages the result
// under a fresh token. Nothing is reserved; stock is re-checked at buy time.
func (s *Service) Prepare(ctx context.Context, buyerID uuid.UUID, req PrepareRequest) (PrepareResult, error) {
	result, err := s.prepare(ctx, buyerID, req)
	if err != nil {
		s.metrics.IncFailure("prepare", string(pkgerrors.As(err).Code()))
		return PrepareResult{}, err
	}
	s.metrics.IncPrepared()
	if s.logg != nil {
		logCtx := s.logg.WithEstablishmentID(ctx, req.EstablishmentID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"offer_count": result.TotalOffers,
			"expires_at":  result.ExpiresAt,
		})
		s.logg.Info(logCtx, "purchase.prepared")
	}
	return result, nil
}

func (s *Service) prepare(ctx context.Context, buyerID uuid.UUID, req PrepareRequest) (PrepareResult, error) {
	if buyerID == uuid.Nil {
		return PrepareResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if req.EstablishmentID == uuid.Nil {
		return PrepareResult{}, pkgerrors.New(pkgerrors.CodeValidation, "establishmentId is required")
	}
	if len(req.Offers) > s.maxOffers {
		return PrepareResult{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a purchase may contain at most %d offers", s.maxOffers))
	}

	snapshots, err := s.builder.BuildAll(ctx, req.Offers)
	if err != nil {
		return PrepareResult{}, asError(err)
	}

	now := s.now()
	if err := s.validators.Validate(ctx, s.offers, validation.Input{
		EstablishmentID: req.EstablishmentID,
		Snapshots:       snapshots,
		Now:             now,
	}); err != nil {
		return PrepareResult{}, asError(err)
	}
	if err := s.checkStock(ctx, snapshots); err != nil {
		return PrepareResult{}, err
	}

	staged, err := staging.NewStagedPurchase(buyerID, req.EstablishmentID, snapshots, now, s.ttl)
	if err != nil {
		return PrepareResult{}, asError(err)
	}
	token, err := s.staging.Stage(ctx, staged)
	if err != nil {
		return PrepareResult{}, asError(err)
	}

	return PrepareResult{
		PurchaseToken:   token,
		Offers:          staged.Offers,
		TotalOffers:     len(staged.Offers),
		TotalPrice:      staged.Total(),
		EstablishmentID: staged.EstablishmentID,
		ExpiresAt:       staged.ExpiresAt,
	}, nil
}

// checkStock rejects requests that already exceed current stock. The commit
// engine repeats this under a row lock.
func (s *Service) checkStock(ctx context.Context, snapshots []offers.OfferSnapshot) error {
	rows, err := s.offers.FindMany(ctx, offers.IDs(snapshots))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
	}
	for _, snap := range snapshots {
		live, ok := rows[snap.ID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found").
				WithDetails(map[string]any{"offer_id": snap.ID})
		}
		if live.Quantity < snap.Quantity {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("not enough stock for offer %q", snap.Title)).
				WithDetails(validation.Violation{OfferID: snap.ID, Field: "quantity", Expected: snap.Quantity, Actual: live.Quantity})
		}
	}
	return nil
}

// Buy consumes the staged purchase behind token and commits it for buyerID.
// A token staged by another buyer is reported as invalid and left in place.
func (s *Service) Buy(ctx context.Context, buyerID uuid.UUID, token string) (BuyResult, error) {
	result, err := s.buy(ctx, buyerID, token)
	if err != nil {
		code := pkgerrors.As(err).Code()
		if code == pkgerrors.CodeTokenInvalid || code == pkgerrors.CodeTokenExpired {
			s.metrics.IncFailure("buy", string(code))
		}
		return BuyResult{}, err
	}
	return result, nil
}

func (s *Service) buy(ctx context.Context, buyerID uuid.UUID, token string) (BuyResult, error) {
	if buyerID == uuid.Nil {
		return BuyResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if token == "" {
		return BuyResult{}, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token is invalid")
	}

	peek, err := s.staging.Retrieve(ctx, token)
	if err != nil {
		return BuyResult{}, asError(err)
	}
	if peek.BuyerID != buyerID {
		return BuyResult{}, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token is invalid")
	}

	staged, err := s.staging.ConsumeIfFresh(ctx, token)
	if err != nil {
		return BuyResult{}, asError(err)
	}

	sale, err := s.engine.Commit(ctx, staged, buyerID)
	if err != nil {
		return BuyResult{}, asError(err)
	}

	view := sales.ViewOf(sale, true)
	return BuyResult{
		Message:       "purchase completed",
		Sale:          view,
		Establishment: establishments.SummaryFromModel(sale.Establishment),
	}, nil
}

func asError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "purchase failed")
}
