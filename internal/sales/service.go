package sales

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/pagination"
)

// Service serves the buyer's read-only views of their sales.
type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("sales repository required")
	}
	return &Service{repo: repo}, nil
}

// ListOpenPurchases returns the buyer's sales that have not been picked up yet.
func (s *Service) ListOpenPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (PurchasePage, error) {
	if buyerID == uuid.Nil {
		return PurchasePage{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return PurchasePage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListOpenForBuyer(ctx, buyerID, params)
	if err != nil {
		return PurchasePage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchases")
	}
	items := make([]SaleView, 0, len(rows))
	for i := range rows {
		items = append(items, ViewOf(&rows[i], false))
	}
	return PurchasePage{Items: items, NextCursor: next}, nil
}

// PickupCode returns the code for one of the buyer's sales.
func (s *Service) PickupCode(ctx context.Context, saleID, buyerID uuid.UUID) (PickupCodeView, error) {
	if buyerID == uuid.Nil {
		return PickupCodeView{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	sale, err := s.repo.FindByID(ctx, saleID)
	if errors.Is(err, ErrNotFound) {
		return PickupCodeView{}, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found").
			WithDetails(map[string]any{"sale_id": saleID})
	}
	if err != nil {
		return PickupCodeView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	if sale.BoughtBy != buyerID {
		return PickupCodeView{}, pkgerrors.New(pkgerrors.CodeForbidden, "sale belongs to another customer")
	}
	return PickupCodeView{
		SaleID:            sale.ID,
		PickupCode:        sale.PickupCode,
		MaxPickupDatetime: sale.MaxPickupDatetime,
		IsPickedUp:        sale.IsPickedUp,
		Establishment:     establishments.SummaryFromModel(sale.Establishment),
	}, nil
}
