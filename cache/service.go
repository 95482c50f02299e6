package cache

import (
	"context"
	"fmt"
)

// KeySerializer builds a cache key segment from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from
// the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through caching operations used by the query
// and mutation bindings. It is exported so that callers can provide alternate
// cache backends.
//
// Implementations must coalesce concurrent GetOrFetch calls for the same key
// into a single fetch.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error

	// Flush removes every entry. Used on identity switch, where serving any
	// previously cached row to the new identity would be a correctness bug.
	Flush(ctx context.Context) error
}

// GetOrFetch is a type-safe wrapper that provides generic support for
// CacheService. A nil settled value yields the zero value of T rather than a
// failed type assertion.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}

	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("cache: value for key %q is %T, not %T", key, result, zero)
	}

	return typed, nil
}
