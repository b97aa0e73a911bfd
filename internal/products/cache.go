package products

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedCatalog is a read-through Redis cache in front of a Catalog.
// Cache failures are logged and fall back to the inner catalog; writes
// invalidate the cached entry.
type CachedCatalog struct {
	inner  Catalog
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(inner Catalog, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	return &CachedCatalog{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(id string) string {
	return "product:" + id
}

func (c *CachedCatalog) GetAll(ctx context.Context) ([]Product, error) {
	return c.inner.GetAll(ctx)
}

func (c *CachedCatalog) GetByID(ctx context.Context, id string) (Product, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var p Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("product cache read failed", "product_id", id, "err", err)
	}

	p, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	c.put(ctx, p)
	return p, nil
}

func (c *CachedCatalog) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ids = distinct(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	var result []Product
	missing := ids
	if raw, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		missing = missing[:0:0]
		for i, v := range raw {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var p Product
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			result = append(result, p)
		}
	} else {
		c.logger.Warn("product cache read failed", "err", err)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.inner.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		c.put(ctx, p)
	}
	return append(result, fetched...), nil
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (c *CachedCatalog) Create(ctx context.Context, p Product) (Product, error) {
	created, err := c.inner.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	c.put(ctx, created)
	return created, nil
}

func (c *CachedCatalog) Update(ctx context.Context, id string, p Product) (Product, error) {
	updated, err := c.inner.Update(ctx, id, p)
	if err != nil {
		return Product{}, err
	}
	c.invalidate(ctx, id)
	return updated, nil
}

func (c *CachedCatalog) Delete(ctx context.Context, id string) (Product, error) {
	deleted, err := c.inner.Delete(ctx, id)
	if err != nil {
		return Product{}, err
	}
	c.invalidate(ctx, id)
	return deleted, nil
}

func (c *CachedCatalog) put(ctx context.Context, p Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(p.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("product cache write failed", "product_id", p.ID, "err", err)
	}
}

func (c *CachedCatalog) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("product cache invalidate failed", "product_id", id, "err", err)
	}
}
