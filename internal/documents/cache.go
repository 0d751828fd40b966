package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"docvault/internal/shared/telemetry"
)

// DefaultListCacheTTL bounds how long a cached list page may be served.
const DefaultListCacheTTL = 5 * time.Minute

// ListCache stores list pages under versioned keys. Bumping a version makes
// every page cached under the old version unreachable.
type ListCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Version(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) error
}

type cachedPage struct {
	Items []Document `json:"items"`
	Total int        `json:"total"`
}

func versionKey(ownerID string) string {
	if ownerID == "" {
		return "documents:list:version:all"
	}
	return "documents:list:version:owner:" + ownerID
}

func pageKey(q ListQuery, version int64) string {
	scope := q.OwnerID
	if scope == "" {
		scope = "*"
	}
	sum := sha256.Sum256([]byte(q.Search))
	return fmt.Sprintf("documents:list:%s:v%d:%s:%s:%d:%d",
		scope, version, q.Status, hex.EncodeToString(sum[:8]), q.Page, q.Limit)
}

func (s *Service) cachedList(ctx context.Context, q ListQuery) (cachedPage, string, bool) {
	if s.Cache == nil {
		return cachedPage{}, "", false
	}
	version, err := s.Cache.Version(ctx, versionKey(q.OwnerID))
	if err != nil {
		telemetry.Warn("documents.cache.version_failed", map[string]any{"err": err.Error()})
		return cachedPage{}, "", false
	}
	key := pageKey(q, version)
	var page cachedPage
	hit, err := s.Cache.Get(ctx, key, &page)
	if err != nil {
		telemetry.Warn("documents.cache.get_failed", map[string]any{"key": key, "err": err.Error()})
		return cachedPage{}, key, false
	}
	return page, key, hit
}

func (s *Service) storeList(ctx context.Context, key string, page cachedPage) {
	if s.Cache == nil || key == "" {
		return
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = DefaultListCacheTTL
	}
	if err := s.Cache.Set(ctx, key, page, ttl); err != nil {
		telemetry.Warn("documents.cache.set_failed", map[string]any{"key": key, "err": err.Error()})
	}
}

// invalidateLists bumps the owner's list version and the all-owners version.
func (s *Service) invalidateLists(ctx context.Context, ownerID string) {
	if s.Cache == nil {
		return
	}
	for _, key := range []string{versionKey(ownerID), versionKey("")} {
		if err := s.Cache.Bump(context.WithoutCancel(ctx), key); err != nil {
			telemetry.Warn("documents.cache.bump_failed", map[string]any{"key": key, "err": err.Error()})
		}
	}
}
