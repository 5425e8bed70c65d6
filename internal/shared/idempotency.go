package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a request key that was already claimed.
var ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already processed", ErrDuplicate)

// IdempotencyStore records claimed request keys in Redis. A nil store accepts
// every key.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store. Keys expire after ttl.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return "cleanops:idempotency:" + scope + ":" + key
}

// Claim reserves key within scope, returning ErrIdempotencyConflict when it
// was claimed before.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	if key == "" || scope == "" {
		return errors.New("idempotency scope and key required")
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(scope, key), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release removes a claim, typically after the request failed so the client
// may retry with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, idempotencyKey(scope, key)).Err()
}
