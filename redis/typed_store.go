package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TypedStore provides JSON-serialized operations on keys under a prefix.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore whose keys are client.Key(namespace, key).
func NewTypedStore[C any](client *Client, namespace string) *TypedStore[C] {
	return &TypedStore[C]{
		client:    client,
		keyPrefix: client.Key(namespace),
	}
}

// FullKey returns the Redis key for key.
func (s *TypedStore[C]) FullKey(key string) string {
	return s.keyPrefix + ":" + key
}

// Load deserializes JSON from Redis. Returns (nil, nil) if the key doesn't exist.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.Get(ctx, s.FullKey(key))
	return s.decode(key, raw, err)
}

// Take atomically loads and deletes the key. Returns (nil, nil) if it doesn't exist.
func (s *TypedStore[C]) Take(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.GetDel(ctx, s.FullKey(key))
	return s.decode(key, raw, err)
}

func (s *TypedStore[C]) decode(key, raw string, err error) (*C, error) {
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("typed store load %q: %w", s.keyPrefix, err)
	}
	var val C
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", s.keyPrefix, err)
	}
	return &val, nil
}

// Save serializes to JSON and stores with TTL. A TTL of 0 means no expiration.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", s.keyPrefix, err)
	}
	if err := s.client.Set(ctx, s.FullKey(key), string(data), ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", s.keyPrefix, err)
	}
	return nil
}

// Delete removes the key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.FullKey(key)); err != nil {
		return fmt.Errorf("typed store delete %q: %w", s.keyPrefix, err)
	}
	return nil
}
