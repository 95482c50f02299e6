package querysync

import (
	"context"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/inconshreveable/log15"

	"github.com/goliatone/go-query-sync/cache"
)

// Notifier surfaces user-facing mutation outcomes. Implementations are
// toast/banner layers; NopNotifier drops everything.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NopNotifier is the default Notifier.
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}

// MutationOptions declares the write contract for one action.
type MutationOptions struct {
	// Name identifies the mutation in the invalidation table.
	Name string

	// Table supplies the centrally declared invalidation prefixes.
	Table *InvalidationTable

	// Prefixes extend the table's declaration for this binding.
	Prefixes []string

	// SuccessText/ErrorText are surfaced through the Notifier. Empty
	// ErrorText falls back to the error message.
	SuccessText string
	ErrorText   string

	Notifier Notifier
	Logger   log15.Logger
}

// MutationFn performs the remote write.
type MutationFn[T any] func(ctx context.Context, args any) (T, error)

// MutationBinding is a declarative write with cache-consistency side
// effects: on success every declared prefix is invalidated before the
// success notification is surfaced, so a consumer re-reading immediately
// afterwards sees fresh-triggering state. On failure nothing is invalidated
// and the error's kind is preserved for UI branching.
type MutationBinding[T any] struct {
	cache   cache.CacheService
	opts    MutationOptions
	run     MutationFn[T]
	pending atomic.Bool
	errored atomic.Bool
}

// NewMutationBinding creates a mutation binding.
func NewMutationBinding[T any](service cache.CacheService, opts MutationOptions, run MutationFn[T]) *MutationBinding[T] {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = log15.New("module", "querysync")
		opts.Logger.SetHandler(log15.DiscardHandler())
	}
	return &MutationBinding[T]{cache: service, opts: opts, run: run}
}

// Execute performs the write. Invalidation of all declared prefixes happens
// strictly before the success notification.
func (m *MutationBinding[T]) Execute(ctx context.Context, args any) (T, error) {
	m.pending.Store(true)
	defer m.pending.Store(false)

	result, err := m.run(ctx, args)
	if err != nil {
		m.errored.Store(true)
		msg := m.opts.ErrorText
		if msg == "" {
			msg = err.Error()
		}
		m.opts.Notifier.Error(msg)
		return result, err
	}

	m.invalidate(ctx)
	m.errored.Store(false)

	if m.opts.SuccessText != "" {
		m.opts.Notifier.Success(m.opts.SuccessText)
	}

	return result, nil
}

// invalidate drops every declared prefix. The write already succeeded, so
// invalidation failures are logged in aggregate rather than failing the
// mutation; affected entries age out through staleness instead.
func (m *MutationBinding[T]) invalidate(ctx context.Context) {
	var errs *multierror.Error

	for _, prefix := range m.prefixes(ctx) {
		if err := m.cache.DeleteByPrefix(ctx, prefix); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		m.opts.Logger.Error("cache invalidation after mutation failed",
			"mutation", m.opts.Name, "err", err)
	}
}

// prefixes combines the table declaration, binding extras, and any context
// scopes into one deduplicated set.
func (m *MutationBinding[T]) prefixes(ctx context.Context) []string {
	var all []string
	if m.opts.Table != nil {
		all = append(all, m.opts.Table.PrefixesFor(m.opts.Name)...)
	}
	all = append(all, m.opts.Prefixes...)
	all = append(all, scopesFromContext(ctx)...)
	return dedupeStrings(all)
}

// IsPending reports whether an Execute is in flight.
func (m *MutationBinding[T]) IsPending() bool {
	return m.pending.Load()
}

// IsError reports whether the most recent Execute failed.
func (m *MutationBinding[T]) IsError() bool {
	return m.errored.Load()
}
