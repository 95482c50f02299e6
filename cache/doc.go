// Package cache provides the cache-store contract and key construction for
// query synchronization.
//
// # Overview
//
// This package exports the interfaces the rest of the module builds on:
//
//   - CacheService: read-through cache operations with prefix invalidation
//   - KeySerializer: builds stable cache keys from arbitrary arguments
//   - Key: the composite identifier (entity, acting user, operation, params)
//     addressing one cached result set
//
// Every cached result is keyed by entity name, acting-user id and the filter
// parameters that produced it. Scoping keys by the acting user is what keeps
// one identity's rows from ever being served to another identity; see the
// querysync package for how sign-out clears user-scoped state.
//
// # Keys and prefixes
//
//	key := cache.NewKey("favorites", "user-1", "list", gymID)
//	key.Serialize(serializer) // "favorites::user-1::list::<params>"
//
// Invalidation is prefix based. EntityPrefix("favorites", "user-1") addresses
// every cached favorites result for that user, regardless of filter params.
// Keeping the entity and actor segments first in the key layout is what makes
// those prefixes meaningful; the serializer never emits the separator inside
// a segment.
//
// # Key serialization strategy
//
// The default key serializer uses reflection to handle various Go types:
//
//   - Basic types: direct string representation
//   - Slices: recursive serialization of elements
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: exported fields as name:value pairs
//   - Complex types: JSON fallback
//
// Segments longer than a threshold are compacted to an xxhash digest so that
// large filter payloads cannot bloat keys or smuggle separator characters
// into the prefix structure.
//
// # Read-through usage
//
//	rows, err := cache.GetOrFetch(ctx, service, key.Serialize(serializer),
//		func(ctx context.Context) ([]Row, error) {
//			return gw.Query(ctx, req)
//		})
//
// Concurrent GetOrFetch calls for the same key coalesce into a single fetch;
// all waiters receive the same settled result.
//
// # See Also
//
// The querysync package builds query and mutation bindings on these
// contracts. The internal sturdyc adapter provides the default backend.
package cache
