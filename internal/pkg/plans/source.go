package plans

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	catalogCacheKey = "plans:catalog"
	catalogCacheTTL = 10 * time.Minute
)

// Source lists the sellable prices, usually from the billing provider.
type Source interface {
	ListPrices(ctx context.Context) ([]CatalogEntry, error)
}

// Loader produces catalog snapshots, caching the price list in redis.
// A nil Cache disables caching.
type Loader struct {
	Source Source
	Cache  *redis.Client
	TTL    time.Duration
}

func NewLoader(src Source, cache *redis.Client) *Loader {
	return &Loader{Source: src, Cache: cache, TTL: catalogCacheTTL}
}

// Load returns a fresh immutable snapshot.
func (l *Loader) Load(ctx context.Context) (Catalog, error) {
	if l.Cache != nil {
		raw, err := l.Cache.Get(ctx, catalogCacheKey).Bytes()
		switch {
		case err == nil:
			var entries []CatalogEntry
			if jerr := json.Unmarshal(raw, &entries); jerr == nil {
				return NewCatalog(entries), nil
			}
			log.Warnf("[Plans] Dropping unreadable catalog cache entry")
		case !errors.Is(err, redis.Nil):
			log.Warnf("[Plans] Catalog cache unavailable: %v", err)
		}
	}

	entries, err := l.Source.ListPrices(ctx)
	if err != nil {
		return Catalog{}, err
	}

	if l.Cache != nil {
		if raw, err := json.Marshal(entries); err == nil {
			if err := l.Cache.Set(ctx, catalogCacheKey, raw, l.TTL).Err(); err != nil {
				log.Warnf("[Plans] Failed to cache catalog: %v", err)
			}
		}
	}
	return NewCatalog(entries), nil
}

// Invalidate drops the cached price list.
func (l *Loader) Invalidate(ctx context.Context) error {
	if l.Cache == nil {
		return nil
	}
	return l.Cache.Del(ctx, catalogCacheKey).Err()
}

// StaticSource serves a fixed price list.
type StaticSource []CatalogEntry

func (s StaticSource) ListPrices(context.Context) ([]CatalogEntry, error) {
	return []CatalogEntry(s), nil
}
