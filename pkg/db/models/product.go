package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog item owned by an establishment.
type Product struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	EstablishmentID uuid.UUID      `gorm:"column:establishment_id;type:uuid;not null;index"`
	Name            string         `gorm:"column:name;not null"`
	Description     string         `gorm:"column:description;not null;default:''"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
