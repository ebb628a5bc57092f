// Package pickup verifies pickup codes at the counter and records the handover.
package pickup

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/metrics"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox/payloads"
)

type sellerDirectory interface {
	ForSeller(ctx context.Context, sellerUserID uuid.UUID) (*models.Establishment, error)
}

type ServiceParams struct {
	DB        sales.TxRunner
	Sales     sales.Repository
	Directory sellerDirectory
	Outbox    sales.OutboxEmitter
	Metrics   *metrics.PurchaseMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type Service struct {
	db        sales.TxRunner
	sales     sales.Repository
	directory sellerDirectory
	outbox    sales.OutboxEmitter
	metrics   *metrics.PurchaseMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Sales == nil {
		return nil, errors.New("sales repository required")
	}
	if p.Directory == nil {
		return nil, errors.New("establishment directory required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        p.DB,
		sales:     p.Sales,
		directory: p.Directory,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// FindByCode returns the sale behind a pickup code for the seller that sold it.
// Sales past their pickup deadline are reported as gone.
func (s *Service) FindByCode(ctx context.Context, code string, sellerUserID uuid.UUID) (*models.Sale, error) {
	est, err := s.directory.ForSeller(ctx, sellerUserID)
	if err != nil {
		return nil, s.fail("lookup", err)
	}

	code = sales.NormalizePickupCode(code)
	if !sales.IsPickupCode(code) {
		return nil, s.fail("lookup", notFound())
	}
	sale, err := s.sales.FindByCode(ctx, code)
	if errors.Is(err, sales.ErrNotFound) {
		return nil, s.fail("lookup", notFound())
	}
	if err != nil {
		return nil, s.fail("lookup", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale"))
	}
	if sale.SoldBy != est.ID {
		return nil, s.fail("lookup", forbidden())
	}
	if s.now().After(sale.MaxPickupDatetime) {
		return nil, s.fail("lookup", gone(sale))
	}
	return sale, nil
}

// Complete marks the sale picked up. Checks run in a fixed order: the sale
// exists and is still open, the seller owns it, the code matches, the deadline
// has not passed. Only one caller can win the transition.
func (s *Service) Complete(ctx context.Context, saleID, sellerUserID uuid.UUID, code string) (*models.Sale, error) {
	est, err := s.directory.ForSeller(ctx, sellerUserID)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	submitted := sales.NormalizePickupCode(code)
	now := s.now()

	var sale *models.Sale
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.sales.WithTx(tx)

		found, err := repo.FindByID(ctx, saleID)
		if errors.Is(err, sales.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if found.IsPickedUp {
			return notFound()
		}
		if found.SoldBy != est.ID {
			return forbidden()
		}
		if subtle.ConstantTimeCompare([]byte(found.PickupCode), []byte(submitted)) != 1 {
			return pkgerrors.New(pkgerrors.CodeCodeMismatch, "pickup code does not match")
		}
		if now.After(found.MaxPickupDatetime) {
			return gone(found)
		}

		won, err := repo.MarkPickedUp(ctx, found.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark picked up")
		}
		if !won {
			return notFound()
		}
		found.IsPickedUp = true
		found.PickedUpAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSalePickedUp,
			AggregateType: enums.AggregateSale,
			AggregateID:   found.ID,
			Actor:         &outbox.ActorRef{UserID: sellerUserID, EstablishmentID: &est.ID, Role: enums.UserRoleSeller},
			OccurredAt:    now,
			Data: payloads.SalePickedUpEvent{
				SaleID:          found.ID,
				BuyerID:         found.BoughtBy,
				EstablishmentID: est.ID,
				SellerUserID:    sellerUserID,
				PickedUpAt:      now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue pickup event")
		}
		sale = found
		return nil
	})
	if err != nil {
		return nil, s.fail("complete", err)
	}

	s.metrics.IncPickup()
	if s.logg != nil {
		logCtx := s.logg.WithSaleID(ctx, sale.ID.String())
		logCtx = s.logg.WithEstablishmentID(logCtx, est.ID.String())
		s.logg.Info(logCtx, "pickup.completed")
	}
	return sale, nil
}

func (s *Service) fail(stage string, err error) error {
	if pkgerrors.As(err) == nil {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pickup failed")
	}
	s.metrics.IncFailure("pickup_"+stage, string(pkgerrors.As(err).Code()))
	return err
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found or already picked up")
}

func forbidden() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "sale belongs to another establishment")
}

func gone(sale *models.Sale) error {
	return pkgerrors.New(pkgerrors.CodeGone, "pickup deadline has passed").
		WithDetails(map[string]any{"sale_id": sale.ID, "max_pickup_datetime": sale.MaxPickupDatetime})
}
