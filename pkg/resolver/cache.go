package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/redis"
	"github.com/Ramsey-B/juniper/pkg/salestax"
)

const DefaultCacheTTL = 10 * time.Minute

// CachedDirectory is a read-through Redis cache in front of another
// Directory. Only found records are cached, so a customer or product created
// later is picked up on the next lookup. Cache failures fall through to the
// wrapped directory.
type CachedDirectory struct {
	next   Directory
	cache  *redis.Client
	ttl    time.Duration
	logger ectologger.Logger
}

func NewCachedDirectory(next Directory, cache *redis.Client, ttl time.Duration, logger ectologger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedDirectory{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func customerKey(corporationID, platform, platformID string) string {
	return fmt.Sprintf("juniper:customer:%s:%s:%s", corporationID, platform, platformID)
}

func productKey(corporationID, platform, platformID string) string {
	return fmt.Sprintf("juniper:product:%s:%s:%s", corporationID, platform, platformID)
}

func (d *CachedDirectory) GetCustomerBySourcePlatformID(ctx context.Context, corporationID, platform, platformID string) (*salestax.Customer, error) {
	key := customerKey(corporationID, platform, platformID)

	data, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var customer salestax.Customer
		if jsonErr := json.Unmarshal(data, &customer); jsonErr == nil {
			metrics.CacheLookupsTotal.WithLabelValues("customer", "hit").Inc()
			return &customer, nil
		}
		d.logger.WithContext(ctx).Warnf("Discarding unreadable cache entry %s", key)
	case !errors.Is(err, redis.ErrCacheMiss):
		d.logger.WithContext(ctx).WithError(err).Warn("Customer cache read failed")
	}
	metrics.CacheLookupsTotal.WithLabelValues("customer", "miss").Inc()

	customer, err := d.next.GetCustomerBySourcePlatformID(ctx, corporationID, platform, platformID)
	if err != nil || customer == nil {
		return customer, err
	}

	d.store(ctx, key, customer)
	return customer, nil
}

func (d *CachedDirectory) GetProductsBySourcePlatforms(ctx context.Context, corporationID string, platforms, platformIDs []string) ([]salestax.Product, error) {
	if len(platforms) != len(platformIDs) {
		return nil, fmt.Errorf("got %d platforms for %d platform ids", len(platforms), len(platformIDs))
	}

	keys := make([]string, len(platformIDs))
	for i := range platformIDs {
		keys[i] = productKey(corporationID, platforms[i], platformIDs[i])
	}

	cached, err := d.cache.MGet(ctx, keys...)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("Product cache read failed")
		cached = map[string][]byte{}
	}

	products := make([]salestax.Product, 0, len(platformIDs))
	var missPlatforms, missIDs []string
	for i, key := range keys {
		if data, ok := cached[key]; ok {
			var product salestax.Product
			if json.Unmarshal(data, &product) == nil {
				products = append(products, product)
				continue
			}
		}
		missPlatforms = append(missPlatforms, platforms[i])
		missIDs = append(missIDs, platformIDs[i])
	}

	metrics.CacheLookupsTotal.WithLabelValues("product", "hit").Add(float64(len(products)))
	metrics.CacheLookupsTotal.WithLabelValues("product", "miss").Add(float64(len(missIDs)))

	if len(missIDs) == 0 {
		return products, nil
	}

	fetched, err := d.next.GetProductsBySourcePlatforms(ctx, corporationID, missPlatforms, missIDs)
	if err != nil {
		return nil, err
	}

	requested := make(map[string][]string, len(missIDs))
	for i, id := range missIDs {
		requested[id] = append(requested[id], missPlatforms[i])
	}
	for i := range fetched {
		platform, ok := cachePlatform(fetched[i], requested[fetched[i].SourcePlatformID])
		if !ok {
			continue
		}
		d.store(ctx, productKey(corporationID, platform, fetched[i].SourcePlatformID), &fetched[i])
	}

	return append(products, fetched...), nil
}

// cachePlatform picks the requested platform a fetched product answers, so
// the entry is stored under the key the next lookup reads. A product without
// a source platform answers the first platform its id was requested under.
func cachePlatform(product salestax.Product, platforms []string) (string, bool) {
	if len(platforms) == 0 {
		return "", false
	}
	if product.SourcePlatform == "" {
		return platforms[0], true
	}
	if ectolinq.Contains(platforms, product.SourcePlatform) {
		return product.SourcePlatform, true
	}
	return "", false
}

func (d *CachedDirectory) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, data, d.ttl); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("Failed to cache %s", key)
	}
}
