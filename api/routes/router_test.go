package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/foodrescue-backend/internal/dbtest"
	"github.com/angelmondragon/foodrescue-backend/internal/establishments"
	"github.com/angelmondragon/foodrescue-backend/internal/notifications"
	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	"github.com/angelmondragon/foodrescue-backend/internal/pickup"
	"github.com/angelmondragon/foodrescue-backend/internal/purchases"
	"github.com/angelmondragon/foodrescue-backend/internal/sales"
	"github.com/angelmondragon/foodrescue-backend/internal/staging"
	pkgAuth "github.com/angelmondragon/foodrescue-backend/pkg/auth"
	"github.com/angelmondragon/foodrescue-backend/pkg/config"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/db/models"
	"github.com/angelmondragon/foodrescue-backend/pkg/enums"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/outbox"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiFixture struct {
	t      *testing.T
	cfg    *config.Config
	conn   *gorm.DB
	router http.Handler
	est    *models.Establishment
	seller uuid.UUID
	buyer  uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := testConfig()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	f := &apiFixture{t: t, cfg: cfg, conn: conn, seller: uuid.New(), buyer: uuid.New()}
	f.est = dbtest.MustCreateEstablishment(t, conn, f.seller, "Corner Bakery")

	dbClient := db.Wrap(conn)
	offerRepo := offers.NewRepository(conn)
	saleRepo := sales.NewRepository(conn)
	estRepo := establishments.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	builder, err := offers.NewBuilder(offerRepo)
	require.NoError(t, err)
	engine, err := sales.NewEngine(sales.EngineParams{
		DB:             dbClient,
		Offers:         offerRepo,
		Sales:          saleRepo,
		Establishments: estRepo,
		Outbox:         emitter,
		Logger:         logg,
	})
	require.NoError(t, err)
	purchaseSvc, err := purchases.NewService(purchases.ServiceParams{
		Builder: builder,
		Offers:  offerRepo,
		Staging: staging.NewMemoryStore(),
		Engine:  engine,
		Logger:  logg,
	})
	require.NoError(t, err)
	salesSvc, err := sales.NewService(saleRepo)
	require.NoError(t, err)
	directory, err := establishments.NewDirectory(estRepo)
	require.NoError(t, err)
	pickupSvc, err := pickup.NewService(pickup.ServiceParams{
		DB:        dbClient,
		Sales:     saleRepo,
		Directory: directory,
		Outbox:    emitter,
		Logger:    logg,
	})
	require.NoError(t, err)
	notificationSvc, err := notifications.NewService(notifications.NewRepository(conn))
	require.NoError(t, err)

	f.router = NewRouter(cfg, logg, Dependencies{
		DBPinger:      dbClient,
		Purchases:     purchaseSvc,
		Sales:         salesSvc,
		Pickup:        pickupSvc,
		Notifications: notificationSvc,
	})
	return f
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "foodrescue-test", ExpirationMinutes: 60},
	}
}

func (f *apiFixture) token(userID uuid.UUID, role enums.UserRole) string {
	f.t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, token string, body any) (int, apiEnvelope) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env apiEnvelope
	if rec.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func TestPurchaseAndPickupFlow(t *testing.T) {
	f := newAPIFixture(t)
	expires := time.Now().UTC().Add(5 * 24 * time.Hour).Truncate(time.Second)
	offer := dbtest.MustCreateOffer(t, f.conn, f.est.ID, dbtest.OfferSeed{
		Title:     "Bakery bag",
		Quantity:  10,
		ExpiresAt: expires,
		Products:  []dbtest.ProductSeed{{Name: "Croissant", Description: "Butter", Quantity: 5, Price: "10.00"}},
	})
	customer := f.token(f.buyer, enums.UserRoleCustomer)
	seller := f.token(f.seller, enums.UserRoleSeller)

	status, env := f.do(http.MethodPost, "/api/v1/prepare-purchase", customer, map[string]any{
		"establishmentId": f.est.ID,
		"offers":          []map[string]any{{"id": offer.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, status, "prepare: %+v", env.Error)
	var prepared struct {
		PurchaseToken string `json:"purchaseToken"`
		TotalOffers   int    `json:"totalOffers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &prepared))
	require.NotEmpty(t, prepared.PurchaseToken)
	assert.Equal(t, 1, prepared.TotalOffers)

	status, env = f.do(http.MethodPost, "/api/v1/buy-offers", customer, map[string]any{"purchaseToken": prepared.PurchaseToken})
	require.Equal(t, http.StatusOK, status, "buy: %+v", env.Error)
	var bought struct {
		Message string `json:"message"`
		Sale    struct {
			ID                uuid.UUID `json:"id"`
			PickupCode        string    `json:"pickupCode"`
			MaxPickupDatetime time.Time `json:"maxPickupDatetime"`
		} `json:"sale"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bought))
	assert.Equal(t, "purchase completed", bought.Message)
	assert.True(t, sales.IsPickupCode(bought.Sale.PickupCode), "code %q", bought.Sale.PickupCode)
	assert.True(t, bought.Sale.MaxPickupDatetime.Equal(expires), "deadline %s", bought.Sale.MaxPickupDatetime)
	assert.Equal(t, 8, dbtest.MustReloadOffer(t, f.conn, offer.ID).Quantity)

	status, env = f.do(http.MethodPost, "/api/v1/buy-offers", customer, map[string]any{"purchaseToken": prepared.PurchaseToken})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)

	status, env = f.do(http.MethodGet, "/api/v1/customer/purchases", customer, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items []struct {
			ID uuid.UUID `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, bought.Sale.ID, page.Items[0].ID)

	status, env = f.do(http.MethodGet, "/api/v1/purchase-code/"+bought.Sale.ID.String(), customer, nil)
	require.Equal(t, http.StatusOK, status)
	var code struct {
		PickupCode string `json:"pickupCode"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &code))
	assert.Equal(t, bought.Sale.PickupCode, code.PickupCode)

	status, env = f.do(http.MethodPost, "/api/v1/check-customer-code", seller, map[string]any{"pickupCode": bought.Sale.PickupCode})
	require.Equal(t, http.StatusOK, status, "check: %+v", env.Error)
	var checked struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &checked))
	assert.Equal(t, bought.Sale.ID, checked.ID)

	status, env = f.do(http.MethodPost, "/api/v1/complete-sell/"+bought.Sale.ID.String(), seller, map[string]any{"pickUpCode": bought.Sale.PickupCode})
	require.Equal(t, http.StatusOK, status, "complete: %+v", env.Error)
	var completed struct {
		IsPickedUp bool `json:"isPickedUp"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.True(t, completed.IsPickedUp)

	status, env = f.do(http.MethodPost, "/api/v1/complete-sell/"+bought.Sale.ID.String(), seller, map[string]any{"pickUpCode": bought.Sale.PickupCode})
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = f.do(http.MethodGet, "/api/v1/customer/purchases", customer, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Empty(t, page.Items, "picked-up sales leave the open list")
}

func TestRoleGuards(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.token(f.buyer, enums.UserRoleCustomer)
	seller := f.token(f.seller, enums.UserRoleSeller)

	status, env := f.do(http.MethodPost, "/api/v1/check-customer-code", customer, map[string]any{"pickupCode": "ABCD-EFGH-JKLM"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = f.do(http.MethodPost, "/api/v1/buy-offers", seller, map[string]any{"purchaseToken": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(http.MethodGet, "/api/v1/customer/purchases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPrepareRejectsForeignEstablishment(t *testing.T) {
	f := newAPIFixture(t)
	other := dbtest.MustCreateEstablishment(t, f.conn, uuid.New(), "Other Shop")
	offer := dbtest.MustCreateOffer(t, f.conn, other.ID, dbtest.OfferSeed{
		Title:    "Veg box",
		Quantity: 3,
		Products: []dbtest.ProductSeed{{Name: "Carrots", Quantity: 1, Price: "3.00"}},
	})

	status, env := f.do(http.MethodPost, "/api/v1/prepare-purchase", f.token(f.buyer, enums.UserRoleCustomer), map[string]any{
		"establishmentId": f.est.ID,
		"offers":          []map[string]any{{"id": offer.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "OFFER_ESTABLISHMENT_MISMATCH", env.Error.Code)
}

func TestPrepareValidatesBody(t *testing.T) {
	f := newAPIFixture(t)
	status, env := f.do(http.MethodPost, "/api/v1/prepare-purchase", f.token(f.buyer, enums.UserRoleCustomer), map[string]any{
		"establishmentId": f.est.ID,
		"offers":          []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCompleteSellWithWrongCode(t *testing.T) {
	f := newAPIFixture(t)
	offer := dbtest.MustCreateOffer(t, f.conn, f.est.ID, dbtest.OfferSeed{
		Title:    "Soup",
		Quantity: 2,
		Products: []dbtest.ProductSeed{{Name: "Tomato soup", Quantity: 1, Price: "4.00"}},
	})
	customer := f.token(f.buyer, enums.UserRoleCustomer)

	_, env := f.do(http.MethodPost, "/api/v1/prepare-purchase", customer, map[string]any{
		"establishmentId": f.est.ID,
		"offers":          []map[string]any{{"id": offer.ID, "quantity": 1}},
	})
	var prepared struct {
		PurchaseToken string `json:"purchaseToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &prepared))
	_, env = f.do(http.MethodPost, "/api/v1/buy-offers", customer, map[string]any{"purchaseToken": prepared.PurchaseToken})
	var bought struct {
		Sale struct {
			ID uuid.UUID `json:"id"`
		} `json:"sale"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bought))

	status, env := f.do(http.MethodPost, "/api/v1/complete-sell/"+bought.Sale.ID.String(), f.token(f.seller, enums.UserRoleSeller), map[string]any{"pickUpCode": "ZZZZ-ZZZZ-ZZZZ"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "CODE_MISMATCH", env.Error.Code)

	status, env = f.do(http.MethodPost, "/api/v1/complete-sell/"+bought.Sale.ID.String(), f.token(uuid.New(), enums.UserRoleSeller), map[string]any{"pickUpCode": "ZZZZ-ZZZZ-ZZZZ"})
	assert.Equal(t, http.StatusForbidden, status, "a seller without an establishment: %+v", env.Error)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := f.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"database":"up"`)
}

func TestHealthReadyReportsDownDependency(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Dependencies{
		DBPinger:    stubPinger{},
		RedisPinger: stubPinger{err: context.DeadlineExceeded},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnwiredServicesAnswerInternalError(t *testing.T) {
	cfg := testConfig()
	var logs bytes.Buffer
	router := NewRouter(cfg, logger.New(logger.Options{ServiceName: "test", Output: &logs}), Dependencies{})

	mint := func(role enums.UserRole) string {
		token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
		require.NoError(t, err)
		return token
	}
	saleID := uuid.NewString()
	cases := []struct {
		method string
		path   string
		role   enums.UserRole
	}{
		{http.MethodPost, "/api/v1/prepare-purchase", enums.UserRoleCustomer},
		{http.MethodPost, "/api/v1/buy-offers", enums.UserRoleCustomer},
		{http.MethodGet, "/api/v1/customer/purchases", enums.UserRoleCustomer},
		{http.MethodGet, "/api/v1/purchase-code/" + saleID, enums.UserRoleCustomer},
		{http.MethodPost, "/api/v1/check-customer-code", enums.UserRoleSeller},
		{http.MethodPost, "/api/v1/complete-sell/" + saleID, enums.UserRoleSeller},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Authorization", "Bearer "+mint(tc.role))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
	}
	assert.NotContains(t, logs.String(), "panic.recovered")
}
