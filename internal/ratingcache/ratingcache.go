// Package ratingcache memoizes condition ratings. A rating only depends on the
// condition and on the rated value, so an entry keyed by the data revision stays valid
// until the data changes.
package ratingcache

import (
	"encoding/binary"
	"fmt"

	"github.com/Yiling-J/theine-go"
	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/internal/build"
	"github.com/proxima-xr/scenematch/pkg/logger"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

const defaultMaxSize = 100_000

var (
	ratingCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "rating_cache_total_count",
		Help:      "The total number of rating cache lookups.",
	})

	ratingCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "rating_cache_hit_count",
		Help:      "The total number of rating cache hits.",
	})
)

// Key identifies one rating: which condition rated which data at which revision.
type Key struct {
	// Handle is the registry-issued identity of a registered condition.
	Handle   uint64
	DataID   traits.DataID
	Revision uint64
}

// Sum64 hashes k into the cache key.
func (k Key) Sum64() uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], k.Handle)
	binary.LittleEndian.PutUint64(buf[8:], uint64(k.DataID))
	binary.LittleEndian.PutUint64(buf[16:], k.Revision)
	return xxhash.Sum64(buf[:])
}

// Cache is safe for concurrent use, so parallel rating workers may share it.
type Cache struct {
	cache   *theine.Cache[uint64, float64]
	maxSize int64
	logger  logger.Logger
}

type Option func(*Cache)

// WithMaxSize bounds the number of cached ratings.
func WithMaxSize(size int64) Option {
	return func(c *Cache) {
		c.maxSize = size
	}
}

func WithLogger(logger logger.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New builds a Cache. Call Close to release it.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		maxSize: defaultMaxSize,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxSize <= 0 {
		return nil, fmt.Errorf("rating cache size must be positive, got %d", c.maxSize)
	}

	cache, err := theine.NewBuilder[uint64, float64](c.maxSize).Build()
	if err != nil {
		return nil, fmt.Errorf("build rating cache: %w", err)
	}
	c.cache = cache

	c.logger.Debug("rating cache ready", zap.Int64("max_size", c.maxSize))
	return c, nil
}

// Get returns the cached rating for k.
func (c *Cache) Get(k Key) (float64, bool) {
	ratingCacheTotalCounter.Inc()

	rating, ok := c.cache.Get(k.Sum64())
	if ok {
		ratingCacheHitCounter.Inc()
	}
	return rating, ok
}

// Set stores rating under k.
func (c *Cache) Set(k Key, rating float64) {
	c.cache.Set(k.Sum64(), rating, 1)
}

// Close stops the cache maintenance goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}
