package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Establishment is a food business selling surplus offers. UserID is the seller account that manages it.
type Establishment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	Address   string    `gorm:"column:address;not null;default:''"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Establishment) TableName() string { return "establishments" }

func (e *Establishment) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
