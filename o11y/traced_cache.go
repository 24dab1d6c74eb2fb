package o11y

import (
	"context"
	"time"

	"github.com/goware/cachestore"
)

type tracedCache[V any] struct {
	label string
	cachestore.Store[V]
}

// NewTracedCache wraps a cachestore so lock-guarded lookups show up as
// spans annotated with whether the value came from the cache or the
// origin getter.
func NewTracedCache[V any](label string, store cachestore.Store[V]) cachestore.Store[V] {
	return &tracedCache[V]{label: label, Store: store}
}

func (c *tracedCache[V]) GetOrSetWithLock(ctx context.Context, key string, getter func(context.Context, string) (V, error)) (_ V, err error) {
	ctx, span := Trace(ctx, "cachestore.GetOrSetWithLock", WithAnnotation("cache", c.label))
	defer func() {
		span.RecordError(err)
		span.End()
	}()
	return c.Store.GetOrSetWithLock(ctx, key, observed(span, getter))
}

func (c *tracedCache[V]) GetOrSetWithLockEx(ctx context.Context, key string, getter func(context.Context, string) (V, error), ttl time.Duration) (_ V, err error) {
	ctx, span := Trace(ctx, "cachestore.GetOrSetWithLockEx", WithAnnotation("cache", c.label))
	defer func() {
		span.RecordError(err)
		span.End()
	}()
	return c.Store.GetOrSetWithLockEx(ctx, key, observed(span, getter), ttl)
}

// observed annotates the span with where the value came from: the
// wrapped getter only runs on a cache miss.
func observed[V any](span *Span, getter func(context.Context, string) (V, error)) func(context.Context, string) (V, error) {
	span.SetAnnotation("source", "cache")
	return func(ctx context.Context, key string) (V, error) {
		span.SetAnnotation("source", "origin")
		return getter(ctx, key)
	}
}
