package state

import (
	"context"
	"fmt"
	"time"

	"github.com/gustavlms/gustav/redis"
)

// RedisNamespace is the key namespace under the client's prefix.
const RedisNamespace = "auth:state"

// RedisStore shares attempts between workers. Redemption uses GETDEL so
// exactly one worker can take a given state.
type RedisStore struct {
	records *redis.TypedStore[AuthorizationState]
	now     func() time.Time
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		records: redis.NewTypedStore[AuthorizationState](client, RedisNamespace),
		now:     time.Now,
	}
}

var _ Store = (*RedisStore)(nil)

// Create implements Store. A record with a non-positive TTL is already
// expired and is not written.
func (s *RedisStore) Create(ctx context.Context, codeVerifier string, opts ...CreateOption) (*AuthorizationState, error) {
	rec, ttl, err := newAuthorizationState(s.now(), codeVerifier, opts)
	if err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}
	if ttl <= 0 {
		return rec, nil
	}
	if err := s.records.Save(ctx, rec.State, rec, ttl); err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}
	return rec, nil
}

// PopValid implements Store.
func (s *RedisStore) PopValid(ctx context.Context, state string) (*AuthorizationState, error) {
	if state == "" {
		return nil, nil
	}
	rec, err := s.records.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("pop state: %w", err)
	}
	if rec == nil || rec.Expired(s.now()) {
		return nil, nil
	}
	return rec, nil
}
