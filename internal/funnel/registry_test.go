package funnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_MountGetUnmount(t *testing.T) {
	built := []string{}
	registry := NewRegistry(func(key string) Options {
		built = append(built, key)
		return Options{Logger: zap.NewNop(), Filters: twoStepFilters()}
	})

	logic, created, err := registry.Mount("signup")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "signup", logic.Key())

	again, created, err := registry.Mount("signup")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, logic, again)

	_, _, err = registry.Mount("checkout")
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout", "signup"}, registry.Keys())
	assert.Equal(t, []string{"signup", "checkout"}, built)

	got, ok := registry.Get("signup")
	require.True(t, ok)
	assert.Same(t, logic, got)

	assert.True(t, registry.Unmount("signup"))
	assert.False(t, registry.Unmount("signup"))
	_, ok = registry.Get("signup")
	assert.False(t, ok)

	_, err = logic.LoadResults(context.Background(), false)
	assert.ErrorIs(t, err, ErrSuperseded, "unmounted logic refuses loads")
}

func TestRegistry_EmptyKey(t *testing.T) {
	registry := NewRegistry(nil)
	_, _, err := registry.Mount("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestRegistry_IndependentState(t *testing.T) {
	registry := NewRegistry(func(string) Options { return Options{Logger: zap.NewNop()} })
	a, _, err := registry.Mount("a")
	require.NoError(t, err)
	b, _, err := registry.Mount("b")
	require.NoError(t, err)

	require.True(t, a.SetConversionWindowDays(30))
	assert.Equal(t, 30, a.ConversionWindowDays())
	assert.Equal(t, DefaultConversionWindowDays, b.ConversionWindowDays())
}
