package establishments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
)

type lookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Establishment, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Establishment, error)
}

// Directory answers "which establishment is this" for the purchase and pickup flows.
type Directory struct {
	repo lookup
}

func NewDirectory(repo lookup) (*Directory, error) {
	if repo == nil {
		return nil, errors.New("establishment repository required")
	}
	return &Directory{repo: repo}, nil
}

// ForSeller returns the establishment a seller manages. Sellers without one are forbidden.
func (d *Directory) ForSeller(ctx context.Context, sellerUserID uuid.UUID) (*models.Establishment, error) {
	if sellerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity required")
	}
	est, err := d.repo.FindByUserID(ctx, sellerUserID)
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller has no establishment")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller establishment")
	}
	return est, nil
}

// Get returns an establishment by id.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	est, err := d.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "establishment not found").
			WithDetails(map[string]any{"establishment_id": id})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load establishment")
	}
	return est, nil
}
