package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps attempts in process memory. Attempts are only
// redeemable by the process that created them.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*AuthorizationState
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*AuthorizationState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

// Create implements Store. Expired records are purged on the way.
func (s *MemoryStore) Create(_ context.Context, codeVerifier string, opts ...CreateOption) (*AuthorizationState, error) {
	now := s.now()
	rec, _, err := newAuthorizationState(now, codeVerifier, opts)
	if err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.records {
		if r.Expired(now) {
			delete(s.records, k)
		}
	}
	stored := *rec
	s.records[rec.State] = &stored
	return rec, nil
}

// PopValid implements Store. Lookup and delete happen under one lock.
func (s *MemoryStore) PopValid(_ context.Context, state string) (*AuthorizationState, error) {
	s.mu.Lock()
	rec, ok := s.records[state]
	if ok {
		delete(s.records, state)
	}
	s.mu.Unlock()

	if !ok || rec.Expired(s.now()) {
		return nil, nil
	}
	return rec, nil
}

// Len returns the number of stored attempts, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
