package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"trendcast/internal/cache"
)

// CacheMetrics is implemented by the metrics wrapper.
type CacheMetrics interface {
	CacheHitsInc()
	CacheMissesInc()
}

// CachedGateway serves recent successful fetches from a BytesCache. Errors
// are never cached and cache failures fall through to the wrapped fetcher.
type CachedGateway struct {
	next    Fetcher
	cache   cache.BytesCache
	ttl     time.Duration
	venue   string
	metrics CacheMetrics
}

func NewCachedGateway(next Fetcher, c cache.BytesCache, ttl time.Duration, venue string, metrics CacheMetrics) *CachedGateway {
	return &CachedGateway{next: next, cache: c, ttl: ttl, venue: venue, metrics: metrics}
}

func (g *CachedGateway) FetchLatest(ctx context.Context, symbol string, count int) ([]float64, error) {
	key := fmt.Sprintf("series:%s:%s:%d", g.venue, symbol, count)

	if b, ok, err := g.cache.GetBytes(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Series cache read failed")
	} else if ok {
		var series []float64
		if err := json.Unmarshal(b, &series); err == nil && len(series) == count {
			if g.metrics != nil {
				g.metrics.CacheHitsInc()
			}
			return series, nil
		}
	}
	if g.metrics != nil {
		g.metrics.CacheMissesInc()
	}

	series, err := g.next.FetchLatest(ctx, symbol, count)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(series); err == nil {
		if err := g.cache.SetBytes(ctx, key, b, g.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Series cache write failed")
		}
	}
	return series, nil
}
