package cache

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/stretchr/testify/assert"
)

func newTestCache(enabled bool) *InMemoryCache {
	cfg := config.GetDefaultConfig()
	cfg.Catalog.CacheEnabled = enabled
	cfg.Catalog.CacheTTL = time.Minute
	return NewInMemoryCache(cfg, logger.NewNoopLogger())
}

func TestDeleteByPrefixKeepsOtherTenants(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	c.Set(ctx, GenerateKey(PrefixCatalogResolution, "t1", "2024-01-01"), "a", 0)
	c.Set(ctx, GenerateKey(PrefixCatalogResolution, "t1", "2024-02-01"), "b", 0)
	c.Set(ctx, GenerateKey(PrefixCatalogResolution, "t10", "2024-01-01"), "c", 0)

	c.DeleteByPrefix(ctx, GenerateKey(PrefixCatalogResolution, "t1")+":")

	_, ok := c.Get(ctx, GenerateKey(PrefixCatalogResolution, "t1", "2024-01-01"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, GenerateKey(PrefixCatalogResolution, "t1", "2024-02-01"))
	assert.False(t, ok)
	v, ok := c.Get(ctx, GenerateKey(PrefixCatalogResolution, "t10", "2024-01-01"))
	assert.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(false)

	c.Set(ctx, "k", "v", 0)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "catalog_snapshots:v1:tenant", GenerateKey(PrefixCatalogSnapshots, "tenant"))
}
