// Package dbtest opens throwaway SQLite databases with the full schema and
// seeds the rows purchase tests need.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
)

// Open returns an in-memory database migrated from the models. A single
// connection is used so every statement sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}

// ProductSeed describes one product attached to a seeded offer.
type ProductSeed struct {
	Name        string
	Description string
	Quantity    int
	Price       string
}

// OfferSeed describes an offer to seed.
type OfferSeed struct {
	Title       string
	Description string
	Quantity    int
	State       enums.OfferState
	ExpiresAt   time.Time
	Products    []ProductSeed
}

// MustCreateEstablishment seeds an establishment owned by sellerUserID.
func MustCreateEstablishment(t testing.TB, conn *gorm.DB, sellerUserID uuid.UUID, name string) *models.Establishment {
	t.Helper()
	est := &models.Establishment{
		UserID:  sellerUserID,
		Name:    name,
		Address: "12 Market Street",
	}
	if err := conn.Create(est).Error; err != nil {
		t.Fatalf("create establishment: %v", err)
	}
	return est
}

// MustCreateOffer seeds an offer with its products for establishmentID.
func MustCreateOffer(t testing.TB, conn *gorm.DB, establishmentID uuid.UUID, seed OfferSeed) *models.Offer {
	t.Helper()
	if seed.State == "" {
		seed.State = enums.OfferStateActive
	}
	if seed.ExpiresAt.IsZero() {
		seed.ExpiresAt = time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	}
	offer := &models.Offer{
		FoodEstablishmentID: establishmentID,
		Title:               seed.Title,
		Description:         seed.Description,
		Quantity:            seed.Quantity,
		State:               seed.State,
		ExpirationDatetime:  seed.ExpiresAt,
	}
	if err := conn.Create(offer).Error; err != nil {
		t.Fatalf("create offer: %v", err)
	}
	for _, p := range seed.Products {
		product := &models.Product{
			EstablishmentID: establishmentID,
			Name:            p.Name,
			Description:     p.Description,
		}
		if err := conn.Create(product).Error; err != nil {
			t.Fatalf("create product: %v", err)
		}
		pivot := &models.OfferProduct{
			OfferID:            offer.ID,
			ProductID:          product.ID,
			Quantity:           p.Quantity,
			Price:              decimal.RequireFromString(p.Price),
			ExpirationDatetime: seed.ExpiresAt,
		}
		if err := conn.Create(pivot).Error; err != nil {
			t.Fatalf("create offer product: %v", err)
		}
	}
	return offer
}

// MustReloadOffer reads the current offer row.
func MustReloadOffer(t testing.TB, conn *gorm.DB, id uuid.UUID) *models.Offer {
	t.Helper()
	var offer models.Offer
	if err := conn.First(&offer, "id = ?", id).Error; err != nil {
		t.Fatalf("reload offer: %v", err)
	}
	return &offer
}
