package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Cache stores enrichment results between records of one run, or across runs when shared.
// Implementations bound their size or lifetime; callers never rely on a hit for correctness.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// GetJSON reads and decodes a cached value.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var out T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes and stores a value.
func SetJSON(ctx context.Context, c Cache, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.Set(ctx, key, raw)
}
