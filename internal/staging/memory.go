package staging

import (
	"context"
	"sync"
)

// MemoryStore keeps staged purchases in process memory. Suitable for a single
// API instance and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]StagedPurchase
	opts    options
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]StagedPurchase),
		opts:    buildOptions(opts),
	}
}

func (s *MemoryStore) Stage(_ context.Context, purchase StagedPurchase) (string, error) {
	if err := checkStageable(purchase); err != nil {
		return "", err
	}
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	purchase.Token = token

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[token] = purchase
	return token, nil
}

func (s *MemoryStore) Retrieve(_ context.Context, token string) (StagedPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchase, ok := s.entries[token]
	if !ok {
		return StagedPurchase{}, errTokenInvalid()
	}
	return purchase, nil
}

func (s *MemoryStore) ConsumeIfFresh(_ context.Context, token string) (StagedPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchase, ok := s.entries[token]
	if !ok {
		return StagedPurchase{}, errTokenInvalid()
	}
	delete(s.entries, token)
	if purchase.IsExpired(s.opts.now()) {
		return StagedPurchase{}, errTokenExpired()
	}
	return purchase, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked drops entries past their expiry plus grace.
func (s *MemoryStore) sweepLocked() {
	cutoff := s.opts.now().Add(-s.opts.grace)
	for token, purchase := range s.entries {
		if purchase.ExpiresAt.Before(cutoff) {
			delete(s.entries, token)
		}
	}
}
