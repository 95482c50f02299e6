package realtime

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-query-sync/cache"
	"github.com/goliatone/go-query-sync/gateway"
)

// State is the lifecycle position of a subscription.
type State int32

const (
	StateUnregistered State = iota
	StateRegistering
	StateActive
	StateUnregistering
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateActive:
		return "active"
	case StateUnregistering:
		return "unregistering"
	default:
		return "unregistered"
	}
}

// registerAttempts bounds transport registration retries before a
// subscription degrades to staleness-only refetching.
const registerAttempts = 3

// Spec declares one subscription: the channel to listen on, the events of
// interest, and the cache key prefixes to invalidate when one arrives.
type Spec struct {
	Channel  string
	Filter   Filter
	Prefixes []string

	// OnEvent, when set, observes matching events after invalidation.
	OnEvent func(ChangeEvent)
}

// Handle identifies an open registration. Unsubscribing requires the handle;
// pairing every Subscribe with an Unsubscribe is what keeps listeners from
// leaking when the owning consumer goes away.
type Handle struct {
	ID      string
	Channel string

	sub *subscription
}

// State reports the current lifecycle state.
func (h *Handle) State() State {
	if h == nil || h.sub == nil {
		return StateUnregistered
	}
	return State(h.sub.state.Load())
}

// Degraded reports whether registration failed and the consumer is relying
// on staleness-based refetching only.
func (h *Handle) Degraded() bool {
	return h != nil && h.sub != nil && h.sub.degraded.Load()
}

type subscription struct {
	id       string
	spec     Spec
	state    atomic.Int32
	degraded atomic.Bool
	stop     func()
	done     chan struct{}
}

// Manager owns all change subscriptions: one active registration per channel,
// invalidation on matching events, and teardown.
type Manager struct {
	transport Transport
	cache     cache.CacheService
	log       log15.Logger
	subs      *xsync.MapOf[string, *subscription]
}

// NewManager creates a subscription manager. A nil logger silences it.
func NewManager(transport Transport, cacheService cache.CacheService, logger log15.Logger) *Manager {
	if logger == nil {
		logger = log15.New("module", "realtime")
		logger.SetHandler(log15.DiscardHandler())
	}

	return &Manager{
		transport: transport,
		cache:     cacheService,
		log:       logger,
		subs:      xsync.NewMapOf[string, *subscription](),
	}
}

// Subscribe opens a registration for the channel. A registration already
// open for the same channel makes this a no-op returning the existing
// handle. Registration failure is not fatal: after bounded attempts the
// returned handle reports Degraded and the consumer falls back to
// staleness-only refetching.
func (m *Manager) Subscribe(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Channel == "" {
		return nil, gateway.NewError(gateway.KindValidation, "subscription channel is required")
	}

	sub := &subscription{id: uuid.NewString(), spec: spec, done: make(chan struct{})}
	sub.state.Store(int32(StateRegistering))

	if existing, loaded := m.subs.LoadOrStore(spec.Channel, sub); loaded {
		return &Handle{ID: existing.id, Channel: spec.Channel, sub: existing}, nil
	}

	var (
		events <-chan ChangeEvent
		stop   func()
		err    error
	)

	for attempt := 1; attempt <= registerAttempts; attempt++ {
		events, stop, err = m.transport.Subscribe(ctx, spec.Channel)
		if err == nil {
			break
		}
		m.log.Warn("subscription registration failed",
			"channel", spec.Channel, "attempt", attempt, "err", err)
	}

	if err != nil {
		// Degraded mode: the UI stays usable on eventually-stale data.
		sub.degraded.Store(true)
		sub.state.Store(int32(StateUnregistered))
		close(sub.done)
		m.subs.Delete(spec.Channel)
		m.log.Warn("subscription degraded to staleness-only refetch", "channel", spec.Channel)
		return &Handle{ID: sub.id, Channel: spec.Channel, sub: sub}, nil
	}

	sub.stop = stop
	sub.state.Store(int32(StateActive))

	go m.pump(sub, events)

	return &Handle{ID: sub.id, Channel: spec.Channel, sub: sub}, nil
}

// pump consumes events until the transport channel closes. Invalidation is
// lazy: affected prefixes are dropped from the cache and the next binding
// access refetches.
func (m *Manager) pump(sub *subscription, events <-chan ChangeEvent) {
	defer close(sub.done)

	for ev := range events {
		if !sub.spec.Filter.Matches(ev) {
			continue
		}

		for _, prefix := range sub.spec.Prefixes {
			if err := m.cache.DeleteByPrefix(context.Background(), prefix); err != nil {
				m.log.Error("cache invalidation failed",
					"channel", sub.spec.Channel, "prefix", prefix, "err", err)
			}
		}

		if sub.spec.OnEvent != nil {
			sub.spec.OnEvent(ev)
		}
	}
}

// Unsubscribe tears down a registration. The transport channel is fully
// released before the channel name becomes available for re-registration;
// unsubscribing an already-unregistered handle is a no-op.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil || h.sub == nil {
		return
	}

	sub := h.sub
	if !sub.state.CompareAndSwap(int32(StateActive), int32(StateUnregistering)) {
		return
	}

	sub.stop()
	<-sub.done

	m.subs.Compute(h.Channel, func(old *subscription, loaded bool) (*subscription, bool) {
		if loaded && old == sub {
			return nil, true
		}
		return old, false
	})

	sub.state.Store(int32(StateUnregistered))
}

// Close tears down every open registration.
func (m *Manager) Close() {
	m.subs.Range(func(channel string, sub *subscription) bool {
		m.Unsubscribe(&Handle{ID: sub.id, Channel: channel, sub: sub})
		return true
	})
}
