package staging

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodrescue-backend/internal/offers"
	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/foodrescue-backend/pkg/redis"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeKV mimics the redis commands the store uses, including key expiry.
type fakeKV struct {
	mu      sync.Mutex
	clock   *fakeClock
	values  map[string]string
	expires map[string]time.Time
	ttls    map[string]time.Duration
}

func newFakeKV(clock *fakeClock) *fakeKV {
	return &fakeKV{
		clock:   clock,
		values:  map[string]string{},
		expires: map[string]time.Time{},
		ttls:    map[string]time.Duration{},
	}
}

func (k *fakeKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		k.values[key] = string(v)
	default:
		k.values[key] = fmt.Sprint(v)
	}
	k.ttls[key] = ttl
	k.expires[key] = k.clock.Now().Add(ttl)
	return nil
}

func (k *fakeKV) liveLocked(key string) (string, bool) {
	v, ok := k.values[key]
	if !ok {
		return "", false
	}
	if !k.clock.Now().Before(k.expires[key]) {
		delete(k.values, key)
		return "", false
	}
	return v, true
}

func (k *fakeKV) Get(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.liveLocked(key)
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (k *fakeKV) GetDel(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.liveLocked(key)
	if !ok {
		return "", pkgredis.ErrNil
	}
	delete(k.values, key)
	return v, nil
}

func (k *fakeKV) StagingKey(token string) string {
	return "fr:staging:" + token
}

func samplePurchase(t *testing.T, createdAt time.Time) StagedPurchase {
	t.Helper()
	snapshot, err := offers.NewOfferSnapshot(uuid.New(), uuid.New(), "Bread box", "Loaves", 2, createdAt.Add(48*time.Hour),
		[]offers.ProductSnapshot{{Name: "Rye", Quantity: 2, Price: decimal.RequireFromString("2.50")}}, createdAt)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	purchase, err := NewStagedPurchase(uuid.New(), snapshot.EstablishmentID, []offers.OfferSnapshot{snapshot}, createdAt, DefaultTTL)
	if err != nil {
		t.Fatalf("staged purchase: %v", err)
	}
	return purchase
}

type storeFactory func(clock *fakeClock) Store

func factories(t *testing.T) map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(clock *fakeClock) Store {
			return NewMemoryStore(WithClock(clock.Now))
		},
		"redis": func(clock *fakeClock) Store {
			store, err := NewRedisStore(newFakeKV(clock), WithClock(clock.Now), WithGrace(10*time.Minute))
			if err != nil {
				t.Fatalf("redis store: %v", err)
			}
			return store
		},
	}
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.Is(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	for name, factory := range factories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
			store := factory(clock)
			ctx := context.Background()
			purchase := samplePurchase(t, clock.Now())

			token, err := store.Stage(ctx, purchase)
			if err != nil {
				t.Fatalf("stage: %v", err)
			}

			got, err := store.ConsumeIfFresh(ctx, token)
			if err != nil {
				t.Fatalf("first consume: %v", err)
			}
			if got.Token != token || got.BuyerID != purchase.BuyerID || len(got.Offers) != 1 {
				t.Fatalf("unexpected payload %+v", got)
			}
			if !got.Offers[0].Products[0].Price.Equal(decimal.RequireFromString("2.50")) {
				t.Fatalf("price not preserved: %s", got.Offers[0].Products[0].Price)
			}

			_, err = store.ConsumeIfFresh(ctx, token)
			expectCode(t, err, pkgerrors.CodeTokenInvalid)
		})
	}
}

func TestConsumeHonoursTTLBoundary(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		code    pkgerrors.Code
	}{
		{name: "4m59s", elapsed: 4*time.Minute + 59*time.Second},
		{name: "exactly 5m", elapsed: 5 * time.Minute},
		{name: "5m01s", elapsed: 5*time.Minute + time.Second, code: pkgerrors.CodeTokenExpired},
	}

	for name, factory := range factories(t) {
		for _, tc := range cases {
			t.Run(name+"/"+tc.name, func(t *testing.T) {
				clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
				store := factory(clock)
				ctx := context.Background()

				token, err := store.Stage(ctx, samplePurchase(t, clock.Now()))
				if err != nil {
					t.Fatalf("stage: %v", err)
				}
				clock.Advance(tc.elapsed)

				_, err = store.ConsumeIfFresh(ctx, token)
				if tc.code == "" {
					if err != nil {
						t.Fatalf("expected success, got %v", err)
					}
					return
				}
				expectCode(t, err, tc.code)

				_, err = store.ConsumeIfFresh(ctx, token)
				expectCode(t, err, pkgerrors.CodeTokenInvalid)
			})
		}
	}
}

func TestUnknownTokenIsInvalid(t *testing.T) {
	for name, factory := range factories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(&fakeClock{now: time.Now()})
			_, err := store.Retrieve(context.Background(), "nope")
			expectCode(t, err, pkgerrors.CodeTokenInvalid)
			_, err = store.ConsumeIfFresh(context.Background(), "")
			expectCode(t, err, pkgerrors.CodeTokenInvalid)
		})
	}
}

func TestRetrieveDoesNotConsume(t *testing.T) {
	for name, factory := range factories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now().UTC()}
			store := factory(clock)
			ctx := context.Background()
			token, err := store.Stage(ctx, samplePurchase(t, clock.Now()))
			if err != nil {
				t.Fatalf("stage: %v", err)
			}
			for i := 0; i < 2; i++ {
				if _, err := store.Retrieve(ctx, token); err != nil {
					t.Fatalf("retrieve %d: %v", i, err)
				}
			}
			if _, err := store.ConsumeIfFresh(ctx, token); err != nil {
				t.Fatalf("consume after retrieve: %v", err)
			}
		})
	}
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	for name, factory := range factories(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now().UTC()}
			store := factory(clock)
			ctx := context.Background()
			token, err := store.Stage(ctx, samplePurchase(t, clock.Now()))
			if err != nil {
				t.Fatalf("stage: %v", err)
			}

			const workers = 16
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				invalid   int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.ConsumeIfFresh(ctx, token)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case pkgerrors.Is(err, pkgerrors.CodeTokenInvalid):
						invalid++
					}
				}()
			}
			wg.Wait()

			if successes != 1 || invalid != workers-1 {
				t.Fatalf("expected 1 success and %d invalid, got %d/%d", workers-1, successes, invalid)
			}
		})
	}
}

func TestRedisStoreKeyTTLIncludesGrace(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	kv := newFakeKV(clock)
	store, err := NewRedisStore(kv, WithClock(clock.Now), WithGrace(10*time.Minute))
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	token, err := store.Stage(context.Background(), samplePurchase(t, clock.Now()))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if got := kv.ttls[kv.StagingKey(token)]; got != 15*time.Minute {
		t.Fatalf("expected key ttl 15m, got %v", got)
	}
}

func TestMemoryStoreSweepsLongExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithClock(clock.Now), WithGrace(time.Minute))
	ctx := context.Background()

	if _, err := store.Stage(ctx, samplePurchase(t, clock.Now())); err != nil {
		t.Fatalf("stage: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := store.Stage(ctx, samplePurchase(t, clock.Now())); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected stale entry to be swept, have %d", store.Len())
	}
}

func TestNewTokenIsRandomURLSafe(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		token, err := NewToken()
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil || len(raw) != tokenBytes {
			t.Fatalf("token %q is not 32 base64url bytes", token)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = struct{}{}
	}
}

func TestNewStagedPurchaseValidatesShape(t *testing.T) {
	now := time.Now()
	if _, err := NewStagedPurchase(uuid.Nil, uuid.New(), []offers.OfferSnapshot{{}}, now, time.Minute); err == nil {
		t.Fatal("expected missing buyer to be rejected")
	}
	if _, err := NewStagedPurchase(uuid.New(), uuid.New(), nil, now, time.Minute); err == nil {
		t.Fatal("expected empty offers to be rejected")
	}
	p, err := NewStagedPurchase(uuid.New(), uuid.New(), []offers.OfferSnapshot{{}}, now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.ExpiresAt.Equal(p.CreatedAt.Add(DefaultTTL)) {
		t.Fatalf("expected default ttl, got %v", p.ExpiresAt.Sub(p.CreatedAt))
	}
	if _, err := NewMemoryStore().Stage(context.Background(), StagedPurchase{}); err == nil {
		t.Fatal("expected incomplete purchase to be rejected")
	}
}
