package pickup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/internal/dbtest"
	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
)

const code = "HJKL-MNPQ-RSTU"

type pickupFixture struct {
	conn    *gorm.DB
	svc     *Service
	seller  uuid.UUID
	est     *models.Establishment
	sale    *models.Sale
	now     time.Time
	clockMu sync.Mutex
}

func newPickupFixture(t *testing.T) *pickupFixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &pickupFixture{
		conn:   conn,
		seller: uuid.New(),
		now:    time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	f.est = dbtest.MustCreateEstablishment(t, conn, f.seller, "Corner Bakery")
	f.sale = &models.Sale{
		BoughtBy:          uuid.New(),
		SoldBy:            f.est.ID,
		PickupCode:        code,
		MaxPickupDatetime: f.now.Add(6 * time.Hour),
		TotalPrice:        decimal.RequireFromString("9.00"),
		Details: []models.SaleDetail{{
			OfferID:         uuid.New(),
			OfferTitle:      "Bread box",
			OfferQuantity:   1,
			ProductQuantity: 3,
			ProductPrice:    decimal.RequireFromString("3.00"),
			ProductName:     "Rye",
		}},
	}
	require.NoError(t, conn.Create(f.sale).Error)

	directory, err := establishments.NewDirectory(establishments.NewRepository(conn))
	require.NoError(t, err)
	f.svc, err = NewService(ServiceParams{
		DB:        db.Wrap(conn),
		Sales:     sales.NewRepository(conn),
		Directory: directory,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Now:       f.clock,
	})
	require.NoError(t, err)
	return f
}

func (f *pickupFixture) clock() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.now
}

func (f *pickupFixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.now = f.now.Add(d)
}

func (f *pickupFixture) reload(t *testing.T) *models.Sale {
	t.Helper()
	var sale models.Sale
	require.NoError(t, f.conn.First(&sale, "id = ?", f.sale.ID).Error)
	return &sale
}

func TestFindByCode(t *testing.T) {
	f := newPickupFixture(t)

	sale, err := f.svc.FindByCode(context.Background(), "  hjkl-mnpq-rstu ", f.seller)
	require.NoError(t, err)
	assert.Equal(t, f.sale.ID, sale.ID)
	require.Len(t, sale.Details, 1)
	assert.Equal(t, "Rye", sale.Details[0].ProductName)

	_, err = f.svc.FindByCode(context.Background(), "ZZZZ-ZZZZ-ZZZZ", f.seller)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = f.svc.FindByCode(context.Background(), "not a code", f.seller)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	otherSeller := uuid.New()
	dbtest.MustCreateEstablishment(t, f.conn, otherSeller, "Rival Bakery")
	_, err = f.svc.FindByCode(context.Background(), code, otherSeller)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "got %v", err)

	_, err = f.svc.FindByCode(context.Background(), code, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden), "seller without establishment, got %v", err)

	f.advance(7 * time.Hour)
	_, err = f.svc.FindByCode(context.Background(), code, f.seller)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeGone), "got %v", err)
}

func TestCompleteMarksPickedUpOnce(t *testing.T) {
	f := newPickupFixture(t)

	sale, err := f.svc.Complete(context.Background(), f.sale.ID, f.seller, code)
	require.NoError(t, err)
	assert.True(t, sale.IsPickedUp)
	require.NotNil(t, sale.PickedUpAt)

	stored := f.reload(t)
	assert.True(t, stored.IsPickedUp)
	require.NotNil(t, stored.PickedUpAt)
	firstPickup := *stored.PickedUpAt

	var event models.OutboxEvent
	require.NoError(t, f.conn.First(&event, "event_type = ?", enums.EventSalePickedUp).Error)
	assert.Equal(t, f.sale.ID, event.AggregateID)

	f.advance(time.Minute)
	_, err = f.svc.Complete(context.Background(), f.sale.ID, f.seller, code)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)

	again := f.reload(t)
	require.NotNil(t, again.PickedUpAt)
	assert.True(t, again.PickedUpAt.Equal(firstPickup), "picked_up_at must not move")
}

func TestCompleteCheckOrder(t *testing.T) {
	cases := []struct {
		name    string
		saleID  func(f *pickupFixture) uuid.UUID
		seller  func(t *testing.T, f *pickupFixture) uuid.UUID
		code    string
		advance time.Duration
		want    pkgerrors.Code
	}{
		{
			name:   "unknown sale beats everything",
			saleID: func(*pickupFixture) uuid.UUID { return uuid.New() },
			seller: func(t *testing.T, f *pickupFixture) uuid.UUID { return f.seller },
			code:   "WRON-GCOD-EXXX",
			want:   pkgerrors.CodeNotFound,
		},
		{
			name:   "ownership before code",
			saleID: func(f *pickupFixture) uuid.UUID { return f.sale.ID },
			seller: func(t *testing.T, f *pickupFixture) uuid.UUID {
				other := uuid.New()
				dbtest.MustCreateEstablishment(t, f.conn, other, "Rival")
				return other
			},
			code: "WRON-GCOD-EXXX",
			want: pkgerrors.CodeForbidden,
		},
		{
			name:    "code before deadline",
			saleID:  func(f *pickupFixture) uuid.UUID { return f.sale.ID },
			seller:  func(t *testing.T, f *pickupFixture) uuid.UUID { return f.seller },
			code:    "WRON-GCOD-EXXX",
			advance: 8 * time.Hour,
			want:    pkgerrors.CodeCodeMismatch,
		},
		{
			name:    "deadline last",
			saleID:  func(f *pickupFixture) uuid.UUID { return f.sale.ID },
			seller:  func(t *testing.T, f *pickupFixture) uuid.UUID { return f.seller },
			code:    code,
			advance: 8 * time.Hour,
			want:    pkgerrors.CodeGone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPickupFixture(t)
			seller := tc.seller(t, f)
			f.advance(tc.advance)

			_, err := f.svc.Complete(context.Background(), tc.saleID(f), seller, tc.code)
			require.Error(t, err)
			assert.Equal(t, tc.want, pkgerrors.As(err).Code(), "got %v", err)
			assert.False(t, f.reload(t).IsPickedUp)
		})
	}
}

func TestConcurrentCompleteHasOneWinner(t *testing.T) {
	f := newPickupFixture(t)

	const callers = 6
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		misses int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Complete(context.Background(), f.sale.ID, f.seller, code)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				misses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, misses)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}
