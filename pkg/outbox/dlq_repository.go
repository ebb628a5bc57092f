package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListSz = 50
)

// DLQRepository stores outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	EventType enums.OutboxEventType
	Reason    enums.OutboxDLQErrorReason
	Limit     int
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead-lettered event on the publisher's transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("invalid dlq reason %q", entry.ErrorReason)
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if !entry.FailedAt.IsZero() {
		entry.FailedAt = entry.FailedAt.UTC()
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

// List returns the most recent failures first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQListSz
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// DeleteBefore prunes entries that failed before cutoff.
func (r *DLQRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
