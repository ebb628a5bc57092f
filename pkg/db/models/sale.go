package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sale is a committed purchase awaiting (or past) pickup. Stored in the sells table.
type Sale struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BoughtBy          uuid.UUID       `gorm:"column:bought_by;type:uuid;not null;index"`
	SoldBy            uuid.UUID       `gorm:"column:sold_by;type:uuid;not null;index"`
	PickupCode        string          `gorm:"column:pickup_code;not null;uniqueIndex:sells_pickup_code_key"`
	IsPickedUp        bool            `gorm:"column:is_picked_up;not null;default:false"`
	PickedUpAt        *time.Time      `gorm:"column:picked_up_at"`
	MaxPickupDatetime time.Time       `gorm:"column:max_pickup_datetime;not null"`
	TotalPrice        decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	Details           []SaleDetail    `gorm:"foreignKey:SellID;constraint:OnDelete:CASCADE"`
	Establishment     *Establishment  `gorm:"foreignKey:SoldBy"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Sale) TableName() string { return "sells" }

func (s *Sale) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// SaleDetail is a denormalized copy of one product of one offer at the moment of sale.
type SaleDetail struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellID             uuid.UUID       `gorm:"column:sell_id;type:uuid;not null;index"`
	OfferID            uuid.UUID       `gorm:"column:offer_id;type:uuid;not null"`
	OfferTitle         string          `gorm:"column:offer_title;not null"`
	OfferQuantity      int             `gorm:"column:offer_quantity;not null"`
	ProductQuantity    int             `gorm:"column:product_quantity;not null"`
	ProductPrice       decimal.Decimal `gorm:"column:product_price;type:numeric(10,2);not null"`
	ProductName        string          `gorm:"column:product_name;not null"`
	ProductDescription string          `gorm:"column:product_description;not null;default:''"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (SaleDetail) TableName() string { return "sell_details" }

func (d *SaleDetail) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
