package staging

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/angelmondragon/foodrescue-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/foodrescue-backend/pkg/redis"
)

// KV is the subset of the redis client the store needs.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	StagingKey(token string) string
}

// RedisStore stores staged purchases as JSON. Consumption uses GETDEL so only
// one caller ever receives a given entry.
type RedisStore struct {
	kv   KV
	opts options
}

// NewRedisStore wraps a redis client.
func NewRedisStore(kv KV, opts ...Option) (*RedisStore, error) {
	if kv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis client required for staging store")
	}
	return &RedisStore{kv: kv, opts: buildOptions(opts)}, nil
}

func (s *RedisStore) Stage(ctx context.Context, purchase StagedPurchase) (string, error) {
	if err := checkStageable(purchase); err != nil {
		return "", err
	}
	token, err := NewToken()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate purchase token")
	}
	purchase.Token = token

	payload, err := json.Marshal(purchase)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode staged purchase")
	}

	ttl := purchase.ExpiresAt.Sub(s.opts.now()) + s.opts.grace
	if ttl <= 0 {
		ttl = s.opts.grace
	}
	if err := s.kv.Set(ctx, s.kv.StagingKey(token), payload, ttl); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store staged purchase")
	}
	return token, nil
}

func (s *RedisStore) Retrieve(ctx context.Context, token string) (StagedPurchase, error) {
	if token == "" {
		return StagedPurchase{}, errTokenInvalid()
	}
	raw, err := s.kv.Get(ctx, s.kv.StagingKey(token))
	if err != nil {
		if pkgredis.IsNil(err) {
			return StagedPurchase{}, errTokenInvalid()
		}
		return StagedPurchase{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read staged purchase")
	}
	return decode(raw)
}

func (s *RedisStore) ConsumeIfFresh(ctx context.Context, token string) (StagedPurchase, error) {
	if token == "" {
		return StagedPurchase{}, errTokenInvalid()
	}
	raw, err := s.kv.GetDel(ctx, s.kv.StagingKey(token))
	if err != nil {
		if pkgredis.IsNil(err) {
			return StagedPurchase{}, errTokenInvalid()
		}
		return StagedPurchase{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume staged purchase")
	}
	purchase, err := decode(raw)
	if err != nil {
		return StagedPurchase{}, err
	}
	if purchase.IsExpired(s.opts.now()) {
		return StagedPurchase{}, errTokenExpired()
	}
	return purchase, nil
}

func decode(raw string) (StagedPurchase, error) {
	var purchase StagedPurchase
	if err := json.Unmarshal([]byte(raw), &purchase); err != nil {
		return StagedPurchase{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode staged purchase")
	}
	return purchase, nil
}
