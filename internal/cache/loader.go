package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loader reads through a Store. Concurrent misses for one key share a
// single call to load. Store failures degrade to a direct load.
type Loader struct {
	Store Store
	TTL   time.Duration

	group singleflight.Group
}

// NewLoader returns a Loader over store.
func NewLoader(store Store, ttl time.Duration) *Loader {
	return &Loader{Store: store, TTL: ttl}
}

// Fetch returns the cached value for key or calls load and caches its
// result. Errors from load are returned and not cached.
func (l *Loader) Fetch(ctx context.Context, key string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	lg := zerolog.Ctx(ctx)
	if l.Store != nil && l.TTL > 0 {
		if b, ok, err := l.Store.Get(ctx, key); err != nil {
			lg.Warn().Err(err).Str("key", key).Msg("cache get failed")
		} else if ok {
			return b, nil
		}
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		b, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if l.Store != nil && l.TTL > 0 {
			if err := l.Store.Set(ctx, key, b, l.TTL); err != nil {
				lg.Warn().Err(err).Str("key", key).Msg("cache set failed")
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops key from the store.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	if l.Store == nil {
		return nil
	}
	return l.Store.Delete(ctx, key)
}
