// Copyright 2024-2025 The h1client Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool implements the keep-alive connection cache. Idle
// connections are grouped into bounded per-destination queues; a request
// either reuses a live idle connection for its destination or dials a
// new one. Returning a connection to the cache is an explicit Release
// call by the connection's owner, not a hidden callback.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/keelhttp/h1client/conn"
	"github.com/keelhttp/h1client/header"
	"github.com/keelhttp/h1client/internal"
)

// ErrClosed is returned by Connection after the cache has been closed.
var ErrClosed = errors.New("connection cache is closed")

const defaultCapacity = 8

// Dialer establishes a new connection for a key on a cache miss.
// *[conn.Dialer] implements it.
type Dialer interface {
	DialContext(ctx context.Context, key conn.Key) (*conn.Conn, error)
}

// Option configures a Cache.
type Option interface {
	apply(*cacheOptions)
}

type optionFunc func(*cacheOptions)

func (f optionFunc) apply(opts *cacheOptions) {
	f(opts)
}

type cacheOptions struct {
	capacity   int
	maxIdleAge time.Duration
	clock      internal.Clock
	logger     *zap.Logger
}

// WithCapacity sets how many idle connections are retained per
// destination. Connections released beyond the capacity are closed.
// The default is 8.
func WithCapacity(n int) Option {
	return optionFunc(func(opts *cacheOptions) {
		opts.capacity = n
	})
}

// WithMaxIdleAge discards idle connections older than the given age when
// they are polled. Zero means idle connections never age out. Backends
// and intermediaries that close idle connections after a time limit
// should be paired with a lower MaxIdleAge so the cache does not hand
// out connections the server is about to close.
func WithMaxIdleAge(age time.Duration) Option {
	return optionFunc(func(opts *cacheOptions) {
		opts.maxIdleAge = age
	})
}

// WithClock substitutes the time source used for idle-age accounting.
// Intended for tests.
func WithClock(clock internal.Clock) Option {
	return optionFunc(func(opts *cacheOptions) {
		opts.clock = clock
	})
}

// WithLogger attaches a logger for cache events. The default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(opts *cacheOptions) {
		opts.logger = logger
	})
}

// Cache is a keep-alive connection cache. The zero value is not usable;
// call New. A single Cache is safe for concurrent use and may be shared
// between clients.
type Cache struct {
	capacity   int
	maxIdleAge time.Duration
	clock      internal.Clock
	logger     *zap.Logger

	mu      sync.RWMutex
	buckets map[conn.Key]chan *conn.Conn
	closed  atomic.Bool
}

// New returns a new connection cache.
func New(options ...Option) *Cache {
	opts := cacheOptions{
		capacity: defaultCapacity,
		clock:    internal.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt.apply(&opts)
	}
	if opts.capacity <= 0 {
		opts.capacity = defaultCapacity
	}
	return &Cache{
		capacity:   opts.capacity,
		maxIdleAge: opts.maxIdleAge,
		clock:      opts.clock,
		logger:     opts.logger,
		buckets:    make(map[conn.Key]chan *conn.Conn),
	}
}

//nolint:gochecknoglobals
var (
	defaultCache     *Cache
	defaultCacheOnce sync.Once
)

// Default returns the process-wide shared cache, creating it on first
// use. Clients that are not given a private cache share this one.
func Default() *Cache {
	defaultCacheOnce.Do(func() {
		defaultCache = New()
	})
	return defaultCache
}

// Connection supplies a connection for the given key, applying the
// keep-alive policy to the outgoing headers:
//
//   - an explicit "Connection: close" forces a one-off connection that
//     is never cached, regardless of the default;
//   - an explicit "Connection: keep-alive" forces a cacheable one;
//   - with neither present the defaultKeepAlive flag decides, and the
//     corresponding Connection header is stamped onto the request.
//
// Cacheable connections come from the key's idle queue when a live entry
// exists; dead or over-aged entries found while polling are closed and
// skipped. On a miss the dialer establishes a new connection. The
// returned connection is exclusively owned by the caller until it is
// passed to Release.
func (c *Cache) Connection(
	ctx context.Context,
	dialer Dialer,
	key conn.Key,
	headers *header.Headers,
	defaultKeepAlive bool,
) (*conn.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	var keepAlive bool
	switch {
	case headers.HasToken("Connection", "close"):
		keepAlive = false
	case headers.HasToken("Connection", "keep-alive"):
		keepAlive = true
	case defaultKeepAlive:
		keepAlive = true
		headers.Set("Connection", "keep-alive")
	default:
		keepAlive = false
		headers.Set("Connection", "close")
	}

	if keepAlive {
		if cached := c.pollLive(c.bucket(key)); cached != nil {
			c.logger.Debug("reusing idle connection", zap.Stringer("key", key))
			cached.MarkInUse()
			return cached, nil
		}
	}
	established, err := dialer.DialContext(ctx, key)
	if err != nil {
		return nil, err
	}
	established.SetPoolable(keepAlive)
	established.MarkInUse()
	c.logger.Debug("dialed connection",
		zap.Stringer("key", key), zap.Bool("keepAlive", keepAlive))
	return established, nil
}

// Release hands a connection back when its request completes. The
// connection is returned to its idle queue if the caller deems the
// exchange reusable, the connection was acquired as cacheable, it still
// looks alive, and the queue has room. Otherwise it is closed. Release
// reports whether the connection was retained.
func (c *Cache) Release(released *conn.Conn, reusable bool) bool {
	if released == nil {
		return false
	}
	if c.closed.Load() || !reusable || !released.Poolable() || !released.IsAlive() {
		_ = released.Close()
		return false
	}
	released.MarkIdle(c.clock.Now())
	select {
	case c.bucket(released.Key()) <- released:
		// Close may have drained the buckets between the check above and
		// the offer; sweep again so the connection cannot be stranded
		// idle in a closed cache.
		if c.closed.Load() {
			c.Evict()
			return false
		}
		return true
	default:
		// Queue full: close rather than silently dropping the socket.
		c.logger.Debug("idle queue full, closing connection",
			zap.Stringer("key", released.Key()))
		_ = released.Close()
		return false
	}
}

// Evict closes every idle connection across all keys. In-flight
// connections are unaffected.
func (c *Cache) Evict() {
	c.mu.RLock()
	buckets := make([]chan *conn.Conn, 0, len(c.buckets))
	for _, bucket := range c.buckets {
		buckets = append(buckets, bucket)
	}
	c.mu.RUnlock()
	var group errgroup.Group
	for _, bucket := range buckets {
		for {
			var idle *conn.Conn
			select {
			case idle = <-bucket:
			default:
			}
			if idle == nil {
				break
			}
			group.Go(idle.Close)
		}
	}
	_ = group.Wait()
}

// Close transitions the cache to its closed state and evicts all idle
// connections. Idempotent; only the first call has any effect.
func (c *Cache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.Evict()
	}
	return nil
}

// pollLive pops idle connections off the bucket until it finds one that
// is still usable, closing any dead or over-aged entries it skips.
func (c *Cache) pollLive(bucket chan *conn.Conn) *conn.Conn {
	for {
		select {
		case idle := <-bucket:
			if c.maxIdleAge > 0 && c.clock.Since(idle.IdleSince()) > c.maxIdleAge {
				c.logger.Debug("discarding over-aged idle connection",
					zap.Stringer("key", idle.Key()))
				_ = idle.Close()
				continue
			}
			if !idle.IsAlive() {
				c.logger.Debug("discarding dead idle connection",
					zap.Stringer("key", idle.Key()))
				_ = idle.Close()
				continue
			}
			return idle
		default:
			return nil
		}
	}
}

func (c *Cache) bucket(key conn.Key) chan *conn.Conn {
	c.mu.RLock()
	bucket, ok := c.buckets[key]
	c.mu.RUnlock()
	if ok {
		return bucket
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok = c.buckets[key]; ok {
		return bucket
	}
	bucket = make(chan *conn.Conn, c.capacity)
	c.buckets[key] = bucket
	return bucket
}
