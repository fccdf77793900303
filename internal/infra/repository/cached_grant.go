package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/usecase"
)

const grantCacheTTL = 300 // seconds

// CachedGrantRepository puts a memcached read-through cache in front of the
// grant store. Cache failures fall back to the store; they are never returned.
type CachedGrantRepository struct {
	next   usecase.GrantRepository
	mc     *memcache.Client
	logger *zap.Logger
}

func NewCachedGrantRepository(next usecase.GrantRepository, mc *memcache.Client, logger *zap.Logger) *CachedGrantRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGrantRepository{next: next, mc: mc, logger: logger.With(zap.String("module", "grant-cache"))}
}

func grantCacheKey(email string) string {
	return "grant:" + strconv.FormatUint(xxh3.HashString(domain.NormalizeEmail(email)), 16)
}

func (r *CachedGrantRepository) GetByEmail(ctx context.Context, email string) (domain.Grant, error) {
	key := grantCacheKey(email)
	if item, err := r.mc.Get(key); err == nil {
		var grant domain.Grant
		if err := json.Unmarshal(item.Value, &grant); err == nil {
			return grant, nil
		}
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		r.logger.Debug("cache get failed", zap.Error(err))
	}

	grant, err := r.next.GetByEmail(ctx, email)
	if err != nil {
		return grant, err
	}

	if value, err := json.Marshal(grant); err == nil {
		if err := r.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: grantCacheTTL}); err != nil {
			r.logger.Debug("cache set failed", zap.Error(err))
		}
	}
	return grant, nil
}

func (r *CachedGrantRepository) Upsert(ctx context.Context, grant domain.Grant) error {
	if err := r.next.Upsert(ctx, grant); err != nil {
		return err
	}
	r.invalidate(grant.Email)
	return nil
}

func (r *CachedGrantRepository) Delete(ctx context.Context, email string) error {
	err := r.next.Delete(ctx, email)
	r.invalidate(email)
	return err
}

func (r *CachedGrantRepository) SearchByEmail(ctx context.Context, fragment string) ([]domain.Grant, error) {
	return r.next.SearchByEmail(ctx, fragment)
}

func (r *CachedGrantRepository) ListByRole(ctx context.Context, tenantID string, role domain.Role) ([]domain.Grant, error) {
	return r.next.ListByRole(ctx, tenantID, role)
}

func (r *CachedGrantRepository) invalidate(email string) {
	err := r.mc.Delete(grantCacheKey(email))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		r.logger.Warn("cache invalidation failed", zap.String("email", email), zap.Error(err))
	}
}

var _ usecase.GrantRepository = (*CachedGrantRepository)(nil)
