package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/usecase"
)

// GLMappingCacheNamespace is the Cache namespace the mapping cache expects.
const GLMappingCacheNamespace = "gl_mapping"

// CachedGLMappingRepository serves GL mappings from cache and falls back to
// the wrapped repository. Unmapped events are never cached, so a mapping
// added later is picked up on the next posting.
type CachedGLMappingRepository struct {
	next    usecase.GLMappingRepository
	cache   usecase.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedGLMappingRepository creates a new CachedGLMappingRepository.
func NewCachedGLMappingRepository(next usecase.GLMappingRepository, cache usecase.Cache, ttl time.Duration, m *metrics.Metrics) *CachedGLMappingRepository {
	return &CachedGLMappingRepository{next: next, cache: cache, ttl: ttl, metrics: m}
}

// GetByEvent resolves an event's accounts.
func (r *CachedGLMappingRepository) GetByEvent(ctx context.Context, eventName string) (*domain.GLMapping, error) {

	raw, err := r.cache.Get(ctx, eventName)
	if err != nil {
		// A cache outage must not stop postings.
		log.Ctx(ctx).Warn().Err(err).Str("event", eventName).Msg("gl mapping cache read failed")
		r.record("get", "error")
	} else if raw != nil {
		var m domain.GLMapping
		if err := json.Unmarshal(raw, &m); err == nil {
			r.record("get", "hit")
			return &m, nil
		}
	}
	r.record("get", "miss")

	mapping, err := r.next.GetByEvent(ctx, eventName)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(mapping); err == nil {
		if err := r.cache.Set(ctx, eventName, raw, r.ttl); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("event", eventName).Msg("gl mapping cache write failed")
		}
	}

	return mapping, nil
}

// List always reads the source of truth.
func (r *CachedGLMappingRepository) List(ctx context.Context) ([]*domain.GLMapping, error) {
	return r.next.List(ctx)
}

// Invalidate drops the cached mapping for eventName.
func (r *CachedGLMappingRepository) Invalidate(ctx context.Context, eventName string) error {
	return r.cache.Delete(ctx, eventName)
}

// InvalidateAll drops every cached mapping. The server calls it after
// migrations, which may have changed the mapping table.
func (r *CachedGLMappingRepository) InvalidateAll(ctx context.Context) error {
	return r.cache.Flush(ctx)
}

func (r *CachedGLMappingRepository) record(op, result string) {
	if r.metrics == nil {
		return
	}
	if result == "error" {
		r.metrics.RedisErrors.WithLabelValues(op).Inc()
		return
	}
	r.metrics.RedisOperations.WithLabelValues(op).Inc()
	r.metrics.CacheHits.WithLabelValues(GLMappingCacheNamespace, result).Inc()
}
