package roleset

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"alkemio.org/authz/internal/authorization"
)

// Cached memoizes another Source per scope for a bounded time.
type Cached struct {
	next  Source
	cache *expirable.LRU[string, []authorization.RoleAccessDefinition]
}

var _ Source = (*Cached)(nil)

// NewCached wraps next. size bounds the number of scopes kept; ttl bounds
// how stale a snapshot may get.
func NewCached(next Source, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 64
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, []authorization.RoleAccessDefinition](size, nil, ttl),
	}
}

func (c *Cached) Definitions(ctx context.Context, scope string) ([]authorization.RoleAccessDefinition, error) {
	key := NormalizeScope(scope)
	if defs, ok := c.cache.Get(key); ok {
		return cloneDefinitions(defs), nil
	}
	defs, err := c.next.Definitions(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneDefinitions(defs))
	return defs, nil
}

// Purge drops every cached snapshot.
func (c *Cached) Purge() {
	c.cache.Purge()
}
