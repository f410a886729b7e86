package external

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"traffic-platform/internal/models"
	"traffic-platform/pkg/metrics"
)

// CachedProvider memoizes forecasts per rounded location and hour in an LRU
type CachedProvider struct {
	next    WeatherProvider
	cache   gcache.Cache
	metrics *metrics.Collector
}

// NewCachedProvider wraps next with an LRU cache of size entries that expire after ttl
func NewCachedProvider(next WeatherProvider, size int, ttl time.Duration, m *metrics.Collector) *CachedProvider {
	return &CachedProvider{
		next:    next,
		cache:   gcache.New(size).LRU().Expiration(ttl).Build(),
		metrics: m,
	}
}

func cacheKey(lat, lon float64, at time.Time) string {
	return fmt.Sprintf("%.2f:%.2f:%s", lat, lon, at.UTC().Truncate(time.Hour).Format(time.RFC3339))
}

// Forecast returns a cached forecast or asks the wrapped provider
func (p *CachedProvider) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*models.WeatherForecast, error) {
	key := cacheKey(lat, lon, at)

	if v, err := p.cache.Get(key); err == nil {
		if p.metrics != nil {
			p.metrics.WeatherCacheHits.Inc()
		}
		forecast := *v.(*models.WeatherForecast)
		return &forecast, nil
	}
	if p.metrics != nil {
		p.metrics.WeatherCacheMisses.Inc()
	}

	forecast, err := p.next.Forecast(ctx, lat, lon, at)
	if err != nil {
		return nil, err
	}

	stored := *forecast
	if err := p.cache.Set(key, &stored); err != nil {
		return nil, fmt.Errorf("failed to cache weather forecast: %w", err)
	}

	return forecast, nil
}

// Purge drops every cached forecast
func (p *CachedProvider) Purge() {
	p.cache.Purge()
}

// Len returns the number of unexpired cache entries
func (p *CachedProvider) Len() int {
	return p.cache.Len(true)
}
