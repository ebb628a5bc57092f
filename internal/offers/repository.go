package offers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
)

// ErrNotFound is returned when an offer is absent or soft-deleted.
var ErrNotFound = errors.New("offer not found")

// ProductLine is a live product row attached to an offer.
type ProductLine struct {
	ProductID          uuid.UUID
	Name               string
	Description        string
	Quantity           int
	Price              decimal.Decimal
	ExpirationDatetime time.Time
}

// Repository reads and mutates offers. All methods honour the soft-delete flag.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error)
	ProductLines(ctx context.Context, offerID uuid.UUID) ([]ProductLine, error)
	CountOwned(ctx context.Context, ids []uuid.UUID, establishmentID uuid.UUID) (int64, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]models.Offer, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an offers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Find(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repositoryImpl) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error) {
	out := make(map[uuid.UUID]models.Offer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Offer
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repositoryImpl) ProductLines(ctx context.Context, offerID uuid.UUID) ([]ProductLine, error) {
	var lines []ProductLine
	err := r.db.WithContext(ctx).
		Table("offer_products AS op").
		Select("op.product_id, p.name, p.description, op.quantity, op.price, op.expiration_datetime").
		Joins("JOIN products p ON p.id = op.product_id AND p.deleted_at IS NULL").
		Where("op.offer_id = ?", offerID).
		Order("p.name ASC, op.product_id ASC").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repositoryImpl) CountOwned(ctx context.Context, ids []uuid.UUID, establishmentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id IN ? AND food_establishment_id = ?", ids, establishmentID).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// DecrementStock removes quantity units from an active offer if at least that
// many remain. An offer emptied by the decrement moves to purchased in the same
// statement.
func (r *repositoryImpl) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND state = ? AND quantity >= ?", id, enums.OfferStateActive, quantity).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"state":      gorm.Expr("CASE WHEN quantity - ? = 0 THEN ? ELSE state END", quantity, enums.OfferStatePurchased),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeactivateExpired moves up to limit active offers past their expiration to inactive
// and returns the rows it changed.
func (r *repositoryImpl) DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]models.Offer, error) {
	var candidates []models.Offer
	query := r.db.WithContext(ctx).
		Where("state = ? AND expiration_datetime < ?", enums.OfferStateActive, now).
		Order("expiration_datetime ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}

	changed := make([]models.Offer, 0, len(candidates))
	for _, offer := range candidates {
		result := r.db.WithContext(ctx).
			Model(&models.Offer{}).
			Where("id = ? AND state = ?", offer.ID, enums.OfferStateActive).
			Updates(map[string]any{"state": enums.OfferStateInactive, "updated_at": now})
		if result.Error != nil {
			return changed, result.Error
		}
		if result.RowsAffected == 1 {
			offer.State = enums.OfferStateInactive
			changed = append(changed, offer)
		}
	}
	return changed, nil
}
