package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
)

// Offer bundles products an establishment sells at a reduced price before they expire.
type Offer struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	FoodEstablishmentID uuid.UUID        `gorm:"column:food_establishment_id;type:uuid;not null;index"`
	Title               string           `gorm:"column:title;not null"`
	Description         string           `gorm:"column:description;not null;default:''"`
	Quantity            int              `gorm:"column:quantity;not null;default:0"`
	State               enums.OfferState `gorm:"column:state;type:text;not null;default:'active'"`
	ExpirationDatetime  time.Time        `gorm:"column:expiration_datetime;not null"`
	Products            []OfferProduct   `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt           gorm.DeletedAt   `gorm:"column:deleted_at;index"`
}

func (Offer) TableName() string { return "offers" }

func (o *Offer) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OfferProduct is the offer/product pivot carrying the per-offer price, quantity and expiration.
type OfferProduct struct {
	OfferID            uuid.UUID       `gorm:"column:offer_id;type:uuid;primaryKey"`
	ProductID          uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity           int             `gorm:"column:quantity;not null"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	ExpirationDatetime time.Time       `gorm:"column:expiration_datetime;not null"`
	Product            Product         `gorm:"foreignKey:ProductID"`
}

func (OfferProduct) TableName() string { return "offer_products" }
