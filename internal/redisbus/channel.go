package redisbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultKey is the Redis list used when no key is configured.
	DefaultKey = "ledsim:snapshots"

	// DefaultTimeout bounds every Redis round trip made by the channel.
	DefaultTimeout = 50 * time.Millisecond

	defaultCapacity = 4
)

// pushScript appends ARGV[2] to the list only while it holds fewer than
// ARGV[1] entries, so the capacity check and the push are atomic.
var pushScript = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) < tonumber(ARGV[1]) then
	redis.call('RPUSH', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// Channel is a bounded latest-value channel stored in a Redis list.
//
// Producer and consumer may live in different processes as long as they use
// the same Redis instance and key. Values are msgpack encoded. Redis errors
// never surface to callers: a failed send reports false and a failed drain
// reports nothing queued, matching a full or empty in-process channel.
type Channel[T any] struct {
	rdb      *redis.Client
	key      string
	capacity int
	timeout  time.Duration
	logger   *slog.Logger
}

// Options configures a [Channel].
type Options struct {
	// Key is the Redis list key. Defaults to [DefaultKey].
	Key string

	// Capacity is the maximum list length. Defaults to 4.
	Capacity int

	// Timeout bounds each Redis call. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// Logger receives debug messages for Redis failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a Redis-backed channel.
//
// Returns an error if redisOpts is nil or the capacity is negative.
func New[T any](redisOpts *redis.Options, opts Options) (*Channel[T], error) {
	if redisOpts == nil {
		return nil, errors.New("redis options cannot be nil")
	}
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("capacity cannot be negative, got %d", opts.Capacity)
	}

	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Channel[T]{
		rdb:      redis.NewClient(redisOpts),
		key:      opts.Key,
		capacity: opts.Capacity,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Channel[T]) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Channel[T]) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key returns the Redis list key.
func (c *Channel[T]) Key() string {
	return c.key
}

// TrySend encodes v and pushes it if the list has room.
func (c *Channel[T]) TrySend(v T) bool {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		c.logger.Debug("snapshot encode failed", "key", c.key, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	pushed, err := pushScript.Run(ctx, c.rdb, []string{c.key}, c.capacity, payload).Int()
	if err != nil {
		c.logger.Debug("snapshot push failed", "key", c.key, "error", err)
		return false
	}
	return pushed == 1
}

// DrainLatest reads the newest entry and clears the list in one transaction.
func (c *Channel[T]) DrainLatest() (T, bool) {
	var zero T

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var tail *redis.StringSliceCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		tail = pipe.LRange(ctx, c.key, -1, -1)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		c.logger.Debug("snapshot drain failed", "key", c.key, "error", err)
		return zero, false
	}

	entries := tail.Val()
	if len(entries) == 0 {
		return zero, false
	}

	var v T
	if err := msgpack.Unmarshal([]byte(entries[0]), &v); err != nil {
		c.logger.Debug("snapshot decode failed", "key", c.key, "error", err)
		return zero, false
	}
	return v, true
}

// Len returns the number of queued entries, or 0 if Redis is unreachable.
func (c *Channel[T]) Len(ctx context.Context) int {
	n, err := c.rdb.LLen(ctx, c.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
