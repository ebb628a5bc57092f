package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/pagination"
)

// ErrNotFound is returned when no sale matches.
var ErrNotFound = errors.New("sale not found")

// Repository persists sales and their denormalized details.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) error
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	FindByCode(ctx context.Context, code string) (*models.Sale, error)
	ListOpenForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Sale, string, error)
	MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a sales repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Create inserts the sale row followed by its details.
func (r *repositoryImpl) Create(ctx context.Context, sale *models.Sale) error {
	if sale == nil {
		return errors.New("sale is required")
	}
	return r.db.WithContext(ctx).Omit("Establishment").Create(sale).Error
}

func (r *repositoryImpl) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("pickup_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repositoryImpl) FindByCode(ctx context.Context, code string) (*models.Sale, error) {
	return r.first(ctx, "pickup_code = ?", code)
}

func (r *repositoryImpl) first(ctx context.Context, query string, arg any) (*models.Sale, error) {
	var sale models.Sale
	err := r.withRelations(ctx).Where(query, arg).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListOpenForBuyer pages through the buyer's sales that are still awaiting pickup, newest first.
func (r *repositoryImpl) ListOpenForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Sale, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.withRelations(ctx).
		Where("bought_by = ? AND is_picked_up = ?", buyerID, false)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Sale
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Page(rows, params.Limit, func(s models.Sale) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	return page, next, nil
}

// MarkPickedUp flips is_picked_up only if it is still false. It reports whether this call won.
func (r *repositoryImpl) MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("id = ? AND is_picked_up = ?", id, false).
		Updates(map[string]any{
			"is_picked_up": true,
			"picked_up_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("offer_title ASC").Order("product_name ASC")
		}).
		Preload("Establishment")
}
