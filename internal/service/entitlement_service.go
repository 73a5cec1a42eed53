package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type entitlementSource interface {
	EntitlementsOf(ctx context.Context, userID string) ([]string, error)
}

// EntitlementService exposes department-wide permission names for a user. The
// underlying lookup joins through the user's department; results are cached
// per user since entitlements change far less often than they are read.
type EntitlementService struct {
	source entitlementSource
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewEntitlementService creates an EntitlementService.
func NewEntitlementService(source entitlementSource, cache *CacheService, ttl time.Duration, logger *zap.Logger) *EntitlementService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementService{source: source, cache: cache, ttl: ttl, logger: logger}
}

func entitlementCacheKey(userID string) string {
	return fmt.Sprintf("entitlements:user:%s", userID)
}

// EntitlementsOf returns the global permission names of the user's
// department. Users without a department have none. Lookup failures surface
// as errors; callers must not treat them as an empty set.
func (s *EntitlementService) EntitlementsOf(ctx context.Context, userID string) ([]string, error) {
	key := entitlementCacheKey(userID)
	var cached []string
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	entitlements, err := s.source.EntitlementsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entitlements == nil {
		entitlements = []string{}
	}

	if err := s.cache.Set(ctx, key, entitlements, s.ttl); err != nil {
		s.logger.Debug("entitlement cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return entitlements, nil
}

// HasEntitlement reports whether the user's department carries the named
// global permission.
func (s *EntitlementService) HasEntitlement(ctx context.Context, userID, permission string) (bool, error) {
	entitlements, err := s.EntitlementsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, e := range entitlements {
		if e == permission {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateUser drops the cached entitlement set for one user.
func (s *EntitlementService) InvalidateUser(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, entitlementCacheKey(userID)); err != nil {
		s.logger.Debug("entitlement cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InvalidateAll drops every cached entitlement set, used after department
// permission changes since membership is not tracked per key.
func (s *EntitlementService) InvalidateAll(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "entitlements:user:*"); err != nil {
		s.logger.Debug("entitlement cache flush failed", zap.Error(err))
	}
}
