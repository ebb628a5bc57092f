package establishments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
)

// ErrNotFound is returned when no establishment matches.
var ErrNotFound = errors.New("establishment not found")

// Repository handles establishment lookups.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to establishment lookups.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository running on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads an establishment by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Establishment, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByUserID loads the establishment managed by a seller account.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Establishment, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.Establishment, error) {
	var est models.Establishment
	err := r.db.WithContext(ctx).Where(query, arg).First(&est).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &est, nil
}
