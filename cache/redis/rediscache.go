// Package rediscache provides a Redis-backed fetch.Cache, shared across
// processes. Values must round-trip through a codec back to the concrete Go
// type the data source produces; sources without a registered codec are
// simply not cached.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	fetch "github.com/TimothyKlim/fetch"
)

// Codec serializes cached values for one source. Decode must reproduce the
// exact Go type the source returns, since leaf continuations re-assert it.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

type jsonCodec[R any] struct{}

func (jsonCodec[R]) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[R]) Decode(data []byte) (any, error) {
	var v R
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSONCodec is a Codec for sources whose result type R round-trips through
// encoding/json.
func JSONCodec[R any]() Codec { return jsonCodec[R]{} }

// Options configures the cache.
//
// Zero values mean: no expiry, prefix "fetch:", 50ms per-operation timeout.
type Options struct {
	TTL       time.Duration
	Prefix    string
	OpTimeout time.Duration
	// Codecs maps source names to their value codecs. A source absent from
	// the map is not cached through this cache.
	Codecs map[string]Codec
	// OnError observes Redis and codec errors, which otherwise surface as
	// cache misses. Optional.
	OnError func(error)
}

// Cache implements fetch.Cache and fetch.Merger on Redis.
type Cache struct {
	client redis.UniversalClient
	opts   Options
}

// New wraps client as a fetch.Cache.
func New(client redis.UniversalClient, opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = "fetch:"
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 50 * time.Millisecond
	}
	return &Cache{client: client, opts: opts}
}

func (c *Cache) key(k fetch.CacheKey) string {
	return c.opts.Prefix + k.Source + ":" + k.Identity
}

func (c *Cache) fail(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Cache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opts.OpTimeout)
}

// Get implements fetch.Cache. Errors degrade to misses.
func (c *Cache) Get(k fetch.CacheKey) (any, bool) {
	codec, ok := c.opts.Codecs[k.Source]
	if !ok {
		return nil, false
	}
	ctx, cancel := c.opContext()
	defer cancel()
	data, err := c.client.Get(ctx, c.key(k)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.fail(err)
		return nil, false
	}
	v, err := codec.Decode(data)
	if err != nil {
		c.fail(err)
		return nil, false
	}
	return v, true
}

// Update implements fetch.Cache. The write lands in Redis; the receiver is
// returned.
func (c *Cache) Update(k fetch.CacheKey, v any) fetch.Cache {
	codec, ok := c.opts.Codecs[k.Source]
	if !ok {
		return c
	}
	data, err := codec.Encode(v)
	if err != nil {
		c.fail(err)
		return c
	}
	ctx, cancel := c.opContext()
	defer cancel()
	if err := c.client.Set(ctx, c.key(k), data, c.opts.TTL).Err(); err != nil {
		c.fail(err)
	}
	return c
}

// Merge implements fetch.Merger with one pipelined write per round.
func (c *Cache) Merge(entries map[fetch.CacheKey]any) fetch.Cache {
	ctx, cancel := c.opContext()
	defer cancel()
	pipe := c.client.Pipeline()
	queued := 0
	for k, v := range entries {
		codec, ok := c.opts.Codecs[k.Source]
		if !ok {
			continue
		}
		data, err := codec.Encode(v)
		if err != nil {
			c.fail(err)
			continue
		}
		pipe.Set(ctx, c.key(k), data, c.opts.TTL)
		queued++
	}
	if queued == 0 {
		return c
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.fail(err)
	}
	return c
}
