package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	values map[string]string
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := &fakeLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "fr:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "fr:lock:cron", time.Minute)

	if ok, err := first.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("expected first acquire to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("expected second acquire to fail while held")
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["fr:lock:cron"]; !held {
		t.Fatal("non-owner release must not drop the lock")
	}
	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockReleaseToleratesExpiredKey(t *testing.T) {
	store := &fakeLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "fr:lock:cron", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected acquire")
	}
	delete(store.values, "fr:lock:cron")
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("expected expired lock release to succeed, got %v", err)
	}
}
