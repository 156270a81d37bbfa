package cache

import (
	"context"
	"errors"
	"time"

	"github.com/learnbuddy/questbuddy/cache/local"
	cacheredis "github.com/learnbuddy/questbuddy/cache/redis"
)

// Cache defines the KV and sorted-set operations the server needs.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// ZSet
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)

	Close() error
}

// Member is one scored member of a sorted set.
type Member struct {
	Member string
	Score  float64
}

// IsNotFound reports whether err means the key was missing, for either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig holds configuration for both Redis and LocalCache.
type CacheConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LocalGCInterval time.Duration
	LocalPubSubBuf  int
}

func (cfg CacheConfig) redis() cacheredis.Config {
	return cacheredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		rc, err := cacheredis.New(cfg.redis())
		if err != nil {
			return nil, err
		}
		return &redisCacheAdapter{c: rc}, nil
	}
	lc, err := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	if err != nil {
		return nil, err
	}
	return &localCacheAdapter{c: lc}, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise an in-process LocalPubSub.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		rc, err := cacheredis.New(cfg.redis())
		if err != nil {
			return nil, err
		}
		return &redisPubSubAdapter{ps: rc}, nil
	}
	return &localPubSubAdapter{ps: local.NewPubSub(cfg.LocalPubSubBuf)}, nil
}

// ---- adapters bridging sub-package types ----

type localCacheAdapter struct {
	c *local.LocalCache
}

func (a *localCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	return a.c.Get(ctx, key)
}

func (a *localCacheAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.c.Set(ctx, key, value, ttl)
}

func (a *localCacheAdapter) Del(ctx context.Context, keys ...string) error {
	return a.c.Del(ctx, keys...)
}

func (a *localCacheAdapter) Exists(ctx context.Context, key string) (bool, error) {
	return a.c.Exists(ctx, key)
}

func (a *localCacheAdapter) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return a.c.ZAdd(ctx, key, score, member)
}

func (a *localCacheAdapter) ZRem(ctx context.Context, key string, members ...string) error {
	return a.c.ZRem(ctx, key, members...)
}

func (a *localCacheAdapter) ZCard(ctx context.Context, key string) (int64, error) {
	return a.c.ZCard(ctx, key)
}

func (a *localCacheAdapter) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	ms, err := a.c.ZRevRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(ms))
	for i, m := range ms {
		out[i] = Member{Member: m.Member, Score: m.Score}
	}
	return out, nil
}

func (a *localCacheAdapter) Close() error {
	a.c.Close()
	return nil
}

type redisCacheAdapter struct {
	c *cacheredis.RedisCache
}

func (a *redisCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	return a.c.Get(ctx, key)
}

func (a *redisCacheAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.c.Set(ctx, key, value, ttl)
}

func (a *redisCacheAdapter) Del(ctx context.Context, keys ...string) error {
	return a.c.Del(ctx, keys...)
}

func (a *redisCacheAdapter) Exists(ctx context.Context, key string) (bool, error) {
	return a.c.Exists(ctx, key)
}

func (a *redisCacheAdapter) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return a.c.ZAdd(ctx, key, score, member)
}

func (a *redisCacheAdapter) ZRem(ctx context.Context, key string, members ...string) error {
	return a.c.ZRem(ctx, key, members...)
}

func (a *redisCacheAdapter) ZCard(ctx context.Context, key string) (int64, error) {
	return a.c.ZCard(ctx, key)
}

func (a *redisCacheAdapter) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	ms, err := a.c.ZRevRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(ms))
	for i, m := range ms {
		out[i] = Member{Member: m.Member, Score: m.Score}
	}
	return out, nil
}

func (a *redisCacheAdapter) Close() error { return a.c.Close() }

type localPubSubAdapter struct {
	ps *local.LocalPubSub
}

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	localCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range localCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}

type redisPubSubAdapter struct {
	ps *cacheredis.RedisCache
}

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	redisCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range redisCh {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()
	return out, cancel, nil
}
