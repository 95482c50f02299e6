package querysync

import (
	"context"
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/goliatone/go-query-sync/cache"
	"github.com/goliatone/go-query-sync/realtime"
)

// Identity is the acting user, supplied by the external authentication
// collaborator. Every cache key and subscription filter incorporates its ID.
type Identity struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// Session tracks the acting identity and owns the teardown that must happen
// when it changes: user-scoped cache state is cleared and tracked
// subscriptions are released, so the next identity can never observe the
// previous one's rows.
type Session struct {
	cache    cache.CacheService
	realtime *realtime.Manager
	log      log15.Logger

	mu      sync.Mutex
	current *Identity
	handles []*realtime.Handle
}

// NewSession creates a signed-out session. The realtime manager may be nil
// when no push transport is configured.
func NewSession(cacheService cache.CacheService, manager *realtime.Manager, logger log15.Logger) *Session {
	if logger == nil {
		logger = log15.New("module", "session")
		logger.SetHandler(log15.DiscardHandler())
	}
	return &Session{cache: cacheService, realtime: manager, log: logger}
}

// Current returns the acting identity, if any.
func (s *Session) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Identity{}, false
	}
	return *s.current, true
}

// ActorID returns the acting user's id, empty when signed out. Query
// bindings use this as their ActorID source.
func (s *Session) ActorID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Authenticated reports whether an identity is present. Query bindings use
// this as their Enabled predicate.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// SignIn installs the acting identity. Switching from a different identity
// first tears down the previous identity's state.
func (s *Session) SignIn(ctx context.Context, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.ID != id.ID {
		if err := s.teardownLocked(ctx); err != nil {
			return err
		}
	}

	s.current = &id
	return nil
}

// SignOut clears the acting identity, releases tracked subscriptions, and
// clears cached state.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}

	err := s.teardownLocked(ctx)
	s.current = nil
	return err
}

// Track registers a subscription handle owned by the current identity; it is
// released on sign-out or identity switch.
func (s *Session) Track(h *realtime.Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

func (s *Session) teardownLocked(ctx context.Context) error {
	if s.realtime != nil {
		for _, h := range s.handles {
			s.realtime.Unsubscribe(h)
		}
	}
	s.handles = nil

	if err := s.cache.Flush(ctx); err != nil {
		s.log.Error("cache flush on identity change failed", "err", err)
		return err
	}

	return nil
}
