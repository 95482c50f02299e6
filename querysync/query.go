package querysync

import (
	"context"
	"sync/atomic"

	"github.com/goliatone/go-query-sync/cache"
)

// Snapshot is the read contract a consumer renders from.
type Snapshot[T any] struct {
	Data      T
	IsLoading bool
	IsError   bool
	Err       error
}

// QueryOptions declares the read contract for one consumer.
type QueryOptions struct {
	// Entity names the remote entity the query reads.
	Entity string

	// Op distinguishes operations on the same entity ("list", "byID", ...).
	Op string

	// Params are the filter parameters; they become key segments, so two
	// bindings with different params never share an entry.
	Params []any

	// ActorID supplies the acting-user id at access time. Keys incorporate
	// it so switching identities can never serve another identity's rows.
	ActorID func() string

	// Enabled gates fetching; while false the binding performs no remote
	// call and reports a settled, empty snapshot.
	Enabled func() bool
}

// QueryBinding is a declarative read bound to one cache key. Concurrent
// accesses share one in-flight fetch through the cache service; refetching
// happens on staleness expiry, invalidation, or first access after remount.
type QueryBinding[T any] struct {
	cache     cache.CacheService
	keys      cache.KeySerializer
	opts      QueryOptions
	fetch     cache.FetchFn[T]
	observers atomic.Int32
}

// NewQueryBinding creates a query binding.
func NewQueryBinding[T any](service cache.CacheService, keys cache.KeySerializer, opts QueryOptions, fetch cache.FetchFn[T]) *QueryBinding[T] {
	return &QueryBinding[T]{cache: service, keys: keys, opts: opts, fetch: fetch}
}

// Key renders the binding's current cache key. Evaluated per access because
// the acting user can change between accesses.
func (b *QueryBinding[T]) Key() string {
	return cache.NewKey(b.opts.Entity, b.actorID(), b.opts.Op, b.opts.Params...).Serialize(b.keys)
}

// Prefix is the binding's invalidation prefix (entity + acting user).
func (b *QueryBinding[T]) Prefix() string {
	return cache.EntityPrefix(b.opts.Entity, b.actorID())
}

// Get resolves the binding: served from cache when fresh, fetched otherwise.
// A disabled binding returns a settled empty snapshot without any remote
// call. Errors settle the snapshot as errored; they are never silently
// swapped for stale-looking data.
func (b *QueryBinding[T]) Get(ctx context.Context) Snapshot[T] {
	if b.opts.Enabled != nil && !b.opts.Enabled() {
		return Snapshot[T]{IsLoading: false}
	}

	data, err := cache.GetOrFetch(ctx, b.cache, b.Key(), b.fetch)
	if err != nil {
		return Snapshot[T]{IsError: true, Err: err}
	}

	return Snapshot[T]{Data: data}
}

// Invalidate drops every cached entry under the binding's prefix. The next
// Get fetches fresh data; nothing is refetched here.
func (b *QueryBinding[T]) Invalidate(ctx context.Context) error {
	return b.cache.DeleteByPrefix(ctx, b.Prefix())
}

// Bind attaches an observer (a mounted consumer) and returns its release
// function. Releasing detaches the observer only: a fetch in flight for the
// shared key continues for the remaining observers.
func (b *QueryBinding[T]) Bind() func() {
	b.observers.Add(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			b.observers.Add(-1)
		}
	}
}

// Observers reports currently attached consumers.
func (b *QueryBinding[T]) Observers() int {
	return int(b.observers.Load())
}

func (b *QueryBinding[T]) actorID() string {
	if b.opts.ActorID == nil {
		return ""
	}
	return b.opts.ActorID()
}
