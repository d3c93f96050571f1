package funnel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Patil2099/posthog/internal/models"
)

func newTestCache(ttl time.Duration) (*ResultCache, *time.Time) {
	cache := NewResultCache(ttl)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }
	return cache, &clock
}

func TestResultCache_GetSet(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	params := BuildAPIParams(twoStepFilters(), ParamOptions{ConversionWindowDays: 14})

	_, ok := cache.Get(params)
	assert.False(t, ok)

	cache.Set(params, resultResponse(t, []models.FunnelStep{step(0, 3)}))
	resp, ok := cache.Get(params)
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"step","order":0,"count":3,"average_conversion_time":null}]`, string(resp.Result))

	other := params
	other.FunnelWindowDays = 30
	_, ok = cache.Get(other)
	assert.False(t, ok, "different body, different entry")
}

func TestResultCache_RefreshFlagSharesEntry(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	params := BuildAPIParams(twoStepFilters(), ParamOptions{ConversionWindowDays: 14})

	cache.Set(params, resultResponse(t, []models.FunnelStep{}))
	params.Refresh = true
	_, ok := cache.Get(params)
	assert.True(t, ok)
}

func TestResultCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	params := models.RequestParams{FunnelWindowDays: 14}

	cache.Set(params, resultResponse(t, []models.FunnelStep{}))
	*clock = clock.Add(59 * time.Second)
	_, ok := cache.Get(params)
	assert.True(t, ok)

	*clock = clock.Add(time.Second)
	_, ok = cache.Get(params)
	assert.False(t, ok)

	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, cache.Purge())
	assert.Equal(t, 0, cache.Len())
}

func TestResultCache_SetSweepsExpired(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	first := models.RequestParams{FunnelWindowDays: 7}
	second := models.RequestParams{FunnelWindowDays: 14}
	third := models.RequestParams{FunnelWindowDays: 30}

	cache.Set(first, resultResponse(t, []models.FunnelStep{}))
	*clock = clock.Add(30 * time.Second)
	cache.Set(second, resultResponse(t, []models.FunnelStep{}))
	assert.Equal(t, 2, cache.Len())

	*clock = clock.Add(45 * time.Second)
	cache.Set(third, resultResponse(t, []models.FunnelStep{}))
	assert.Equal(t, 2, cache.Len(), "first entry expired and was swept")
	_, ok := cache.Get(second)
	assert.True(t, ok)
	_, ok = cache.Get(first)
	assert.False(t, ok)
}

func TestResultCache_SkipsLoading(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	cache.Set(models.RequestParams{}, loadingResponse())
	cache.Set(models.RequestParams{}, nil)
	assert.Equal(t, 0, cache.Len())
}

func TestNewResultCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultCacheTTL, NewResultCache(0).ttl)
}
