package querysync

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-query-sync/gateway"
)

// FindOrCreate runs a compound mutation: resolve a parent record (finding an
// existing one or creating it), then run a dependent call against it. The
// canonical case is "send message": find or create the conversation for a
// sender/receiver pair, then insert the message.
//
// Only a notFound from Find selects the create branch; any other failure
// aborts the compound and the dependent call never executes. Executions
// sharing a pair key are serialized so two quick sends for the same pair
// cannot create two parents.
type FindOrCreate[P, R any] struct {
	// PairKey derives the logical identity of the parent from the args,
	// e.g. "conversation:<senderID>:<receiverID>".
	PairKey func(args any) string

	// Find resolves an existing parent, returning a notFound gateway error
	// when there is none.
	Find func(ctx context.Context, args any) (P, error)

	// Create makes the parent when Find reported notFound.
	Create func(ctx context.Context, args any) (P, error)

	// Then runs the dependent call once the parent is resolved.
	Then func(ctx context.Context, parent P, args any) (R, error)

	locks *xsync.MapOf[string, *sync.Mutex]
	once  sync.Once
}

// Execute runs the compound mutation.
func (f *FindOrCreate[P, R]) Execute(ctx context.Context, args any) (R, error) {
	var zero R

	f.once.Do(func() {
		f.locks = xsync.NewMapOf[string, *sync.Mutex]()
	})

	if key := f.PairKey(args); key != "" {
		mu, _ := f.locks.LoadOrCompute(key, func() *sync.Mutex {
			return &sync.Mutex{}
		})
		mu.Lock()
		defer mu.Unlock()
	}

	parent, err := f.Find(ctx, args)
	if err != nil {
		if !gateway.IsNotFound(err) {
			return zero, err
		}
		if parent, err = f.Create(ctx, args); err != nil {
			return zero, err
		}
	}

	return f.Then(ctx, parent, args)
}
