// Package querysync provides declarative query and mutation bindings over a
// remote data gateway, keeping multiple consumers consistent through a
// shared cache and push-based invalidation.
//
// # Overview
//
// A QueryBinding is the read contract one consumer declares: entity, filter
// params, acting-user source, an enabled predicate, and a fetch function.
// Resolution is read-through:
//
//  1. Build the composite cache key (entity, acting user, op, params)
//  2. Serve the cached value when present and fresh
//  3. Otherwise fetch through the gateway, store, and return
//
// Concurrent accesses to the same key share one in-flight fetch. A disabled
// binding (say, no authenticated user yet) performs no remote call and
// reports a settled empty snapshot rather than erroring.
//
// A MutationBinding is the write contract: a mutate function plus the cache
// key prefixes to invalidate on success. The ordering guarantee is the
// load-bearing part: every declared prefix is invalidated before the success
// notification surfaces, so a consumer re-reading immediately afterwards
// refetches instead of rendering the pre-mutation value. Failed mutations
// invalidate nothing and preserve the gateway error kind for UI branching.
//
// # Invalidation table
//
// Which prefixes a mutation invalidates is declared centrally:
//
//	table := querysync.NewInvalidationTable()
//	table.Declare("favorites.add",
//		cache.EntityPrefix("favorites", userID),
//		cache.EntityPrefix("trainer_stats", userID))
//
// Bindings look their sets up by name. Extra scopes for a single call can be
// attached with WithScopes on the context.
//
// # Identity
//
// Session owns the acting identity. Cache keys incorporate the actor id, and
// sign-out (or an identity switch) flushes cached state and releases tracked
// subscriptions, so identity B can never observe identity A's rows.
//
// # Compound mutations
//
// FindOrCreate covers dependent writes such as "send message": resolve the
// conversation for a sender/receiver pair - creating it only on a notFound -
// then insert the message. Executions for the same pair are serialized, so
// two quick sends cannot create two conversations. Any non-notFound failure
// of the first step aborts the compound.
//
// # See Also
//
// The cache package defines keys and the cache-store contract; the gateway
// package the remote operations and error taxonomy; the realtime package
// the change subscriptions that invalidate these same prefixes from outside
// the session.
package querysync
