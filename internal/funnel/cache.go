package funnel

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
)

// DefaultCacheTTL matches how long the backend itself caches query results
const DefaultCacheTTL = 60 * time.Second

// resultCacheEntry is a finished funnel response and when it was stored
type resultCacheEntry struct {
	response  models.FunnelResponse
	fetchedAt time.Time
}

// ResultCache keeps finished funnel responses keyed by request body with TTL
type ResultCache struct {
	entries   map[string]*resultCacheEntry
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewResultCache creates a cache; a non-positive ttl uses DefaultCacheTTL
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		entries: make(map[string]*resultCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached response for params if it has not expired
func (rc *ResultCache) Get(params models.RequestParams) (*models.FunnelResponse, bool) {
	key, ok := cacheKey(params)
	if !ok {
		return nil, false
	}

	rc.mu.RLock()
	entry, exists := rc.entries[key]
	if exists && rc.now().Sub(entry.fetchedAt) < rc.ttl {
		resp := entry.response
		rc.mu.RUnlock()
		logging.L().Debug("funnel cache hit", zap.String("key", key))
		return &resp, true
	}
	rc.mu.RUnlock()
	return nil, false
}

// Set stores a finished response. Responses still loading are never cached.
// Expired entries are swept at most once per TTL.
func (rc *ResultCache) Set(params models.RequestParams, resp *models.FunnelResponse) {
	if resp == nil || resp.Loading {
		return
	}
	key, ok := cacheKey(params)
	if !ok {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	now := rc.now()
	if now.Sub(rc.lastSweep) >= rc.ttl {
		rc.purgeLocked(now)
	}
	rc.entries[key] = &resultCacheEntry{
		response:  *resp,
		fetchedAt: now,
	}
}

// Purge drops expired entries and returns how many were removed
func (rc *ResultCache) Purge() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.purgeLocked(rc.now())
}

func (rc *ResultCache) purgeLocked(now time.Time) int {
	rc.lastSweep = now
	removed := 0
	for key, entry := range rc.entries {
		if now.Sub(entry.fetchedAt) >= rc.ttl {
			delete(rc.entries, key)
			removed++
		}
	}
	if removed > 0 {
		logging.L().Debug("funnel cache purged", zap.Int("count", removed))
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (rc *ResultCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

func cacheKey(params models.RequestParams) (string, bool) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:]), true
}
