// Package realtimeinfra provides the redis-backed change event transport.
package realtimeinfra

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-query-sync/realtime"
)

// RedisConfig configures the redis transport.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// RedisTransport implements realtime.Notifier over redis pub/sub. Delivery
// is best effort, which is all cache invalidation needs: a dropped event
// costs one staleness window, not correctness.
type RedisTransport struct {
	rdb *redis.Client
	log log15.Logger
}

var _ realtime.Notifier = (*RedisTransport)(nil)

// NewRedisTransport connects to redis and verifies the connection.
func NewRedisTransport(cfg RedisConfig, logger log15.Logger) (*RedisTransport, error) {
	if logger == nil {
		logger = log15.New("module", "realtime-redis")
		logger.SetHandler(log15.DiscardHandler())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &RedisTransport{rdb: rdb, log: logger}, nil
}

// Subscribe implements realtime.Transport.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan realtime.ChangeEvent, func(), error) {
	ps := t.rdb.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round trip so registration failures
	// surface here instead of as a silently dead channel.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan realtime.ChangeEvent, 16)

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev realtime.ChangeEvent
			if err := msgpack.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.log.Warn("dropping undecodable change event", "channel", channel, "err", err)
				continue
			}
			select {
			case out <- ev:
			default:
				t.log.Warn("dropping change event for slow subscriber", "channel", channel)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				t.log.Warn("closing pubsub", "channel", channel, "err", err)
			}
		})
	}

	return out, stop, nil
}

// Notify implements realtime.Notifier.
func (t *RedisTransport) Notify(ctx context.Context, channel string, ev realtime.ChangeEvent) error {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, channel, payload).Err()
}

// Close releases the redis client.
func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}
