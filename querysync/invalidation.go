package querysync

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// InvalidationTable is the central declaration of which cache key prefixes
// each named mutation invalidates. Declaring the sets in one place keeps
// sibling mutations from drifting apart in what they refresh; bindings may
// extend their declared set but never bypass it.
type InvalidationTable struct {
	entries *xsync.MapOf[string, []string]
}

// NewInvalidationTable creates an empty table.
func NewInvalidationTable() *InvalidationTable {
	return &InvalidationTable{entries: xsync.NewMapOf[string, []string]()}
}

// Declare records the prefixes a mutation invalidates, replacing any prior
// declaration for the same name.
func (t *InvalidationTable) Declare(mutation string, prefixes ...string) {
	t.entries.Store(mutation, append([]string(nil), prefixes...))
}

// PrefixesFor returns the declared prefixes for a mutation.
func (t *InvalidationTable) PrefixesFor(mutation string) []string {
	prefixes, ok := t.entries.Load(mutation)
	if !ok {
		return nil
	}
	return append([]string(nil), prefixes...)
}

type invalidationScopeKey struct{}

// WithScopes attaches additional invalidation prefixes to the context for
// the duration of one mutation, on top of the table's declaration.
func WithScopes(ctx context.Context, scopes ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(scopes) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(scopesFromContext(ctx), scopes...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, invalidationScopeKey{}, combined)
}

func scopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if scopes, ok := ctx.Value(invalidationScopeKey{}).([]string); ok {
		return append([]string(nil), scopes...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
