// Package di wires the cache, gateway, realtime and binding layers into one
// explicitly constructed container with a defined lifecycle: built at
// application start, closed (or flushed via session sign-out) when the
// application shuts down. Nothing in the module relies on ambient singleton
// state.
package di

import (
	"github.com/inconshreveable/log15"

	"github.com/goliatone/go-query-sync/cache"
	"github.com/goliatone/go-query-sync/gateway"
	"github.com/goliatone/go-query-sync/internal/cacheinfra"
	"github.com/goliatone/go-query-sync/querysync"
	"github.com/goliatone/go-query-sync/realtime"
)

// Options configures the container.
type Options struct {
	// Cache configures the cache store; zero value uses defaults.
	Cache cacheinfra.Config

	// Gateway is the remote data gateway. Required.
	Gateway gateway.Gateway

	// Transport carries change events. Nil falls back to an in-process
	// notifier, i.e. staleness-only freshness across processes.
	Transport realtime.Transport

	// Logger is shared by all components; nil silences logging.
	Logger log15.Logger
}

// Container holds singleton instances of the data-synchronization
// components and provides factories for bindings.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	gateway       gateway.Gateway
	realtime      *realtime.Manager
	table         *querysync.InvalidationTable
	session       *querysync.Session
	logger        log15.Logger
	config        cacheinfra.Config
}

// NewContainer creates a container from the provided options.
func NewContainer(opts Options) (*Container, error) {
	if opts.Gateway == nil {
		return nil, gateway.NewError(gateway.KindConfig, "container requires a gateway")
	}

	cfg := opts.Cache
	if cfg == (cacheinfra.Config{}) {
		cfg = cacheinfra.DefaultConfig()
	}

	cacheService, err := cacheinfra.NewSturdycService(cfg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log15.New("module", "querysync")
		logger.SetHandler(log15.DiscardHandler())
	}

	transport := opts.Transport
	if transport == nil {
		transport = realtime.NewMemoryNotifier()
	}

	manager := realtime.NewManager(transport, cacheService, logger)

	return &Container{
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		gateway:       opts.Gateway,
		realtime:      manager,
		table:         querysync.NewInvalidationTable(),
		session:       querysync.NewSession(cacheService, manager, logger),
		logger:        logger,
		config:        cfg,
	}, nil
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Gateway returns the remote data gateway.
func (c *Container) Gateway() gateway.Gateway {
	return c.gateway
}

// Realtime returns the subscription manager.
func (c *Container) Realtime() *realtime.Manager {
	return c.realtime
}

// Invalidations returns the central invalidation table.
func (c *Container) Invalidations() *querysync.InvalidationTable {
	return c.table
}

// Session returns the acting-user session.
func (c *Container) Session() *querysync.Session {
	return c.session
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cacheinfra.Config {
	return c.config
}

// Close releases every open subscription.
func (c *Container) Close() {
	c.realtime.Close()
}

// NewQuery creates a query binding wired to the container's cache and key
// serializer. Since Go methods cannot have type parameters, this is a
// package-level function.
func NewQuery[T any](c *Container, opts querysync.QueryOptions, fetch cache.FetchFn[T]) *querysync.QueryBinding[T] {
	if opts.ActorID == nil {
		opts.ActorID = c.session.ActorID
	}
	if opts.Enabled == nil {
		opts.Enabled = c.session.Authenticated
	}
	return querysync.NewQueryBinding(c.cacheService, c.keySerializer, opts, fetch)
}

// NewMutation creates a mutation binding wired to the container's cache and
// invalidation table.
func NewMutation[T any](c *Container, opts querysync.MutationOptions, run querysync.MutationFn[T]) *querysync.MutationBinding[T] {
	if opts.Table == nil {
		opts.Table = c.table
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return querysync.NewMutationBinding(c.cacheService, opts, run)
}
