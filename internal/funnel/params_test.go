package funnel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Patil2099/posthog/internal/models"
)

func TestAutocorrectInterval(t *testing.T) {
	tests := []struct {
		name     string
		filters  models.FilterState
		expected string
	}{
		{name: "empty defaults to day", filters: models.FilterState{}, expected: "day"},
		{name: "minute becomes hour", filters: models.FilterState{Interval: "minute"}, expected: "hour"},
		{name: "minute with wide range becomes day", filters: models.FilterState{Interval: "minute", DateFrom: "-90d"}, expected: "day"},
		{name: "hour over 90 days", filters: models.FilterState{Interval: "hour", DateFrom: "-90d"}, expected: "day"},
		{name: "hour over year to date", filters: models.FilterState{Interval: "hour", DateFrom: "yStart"}, expected: "day"},
		{name: "hour over all time", filters: models.FilterState{Interval: "hour", DateFrom: "all"}, expected: "day"},
		{name: "hour over a week", filters: models.FilterState{Interval: "hour", DateFrom: "-7d"}, expected: "hour"},
		{name: "week unchanged", filters: models.FilterState{Interval: "week", DateFrom: "all"}, expected: "week"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AutocorrectInterval(tt.filters))
		})
	}
}

func TestCleanParams_Projection(t *testing.T) {
	step := 2
	filters := models.FilterState{
		Insight:       models.InsightTrends,
		DateFrom:      "-7d",
		Events:        []models.Entity{event("$pageview", 0), event("signup", 1)},
		Display:       models.DisplayFunnelViz,
		FunnelStep:    &step,
		Breakdown:     "$browser",
		BreakdownType: "event",
		FromDashboard: true,
		NewEntity:     []models.Entity{event("draft", 0)},
	}

	cleaned := CleanParams(filters)

	assert.Equal(t, models.InsightFunnels, cleaned.Insight)
	assert.Equal(t, "day", cleaned.Interval)
	assert.Equal(t, "-7d", cleaned.DateFrom)
	assert.Len(t, cleaned.Events, 2)
	assert.Equal(t, "$browser", cleaned.Breakdown)
	if assert.NotNil(t, cleaned.FunnelToStep) {
		assert.Equal(t, 2, *cleaned.FunnelToStep)
	}
	assert.False(t, cleaned.FromDashboard)
	assert.Nil(t, cleaned.NewEntity)
}

func TestCleanParams_Idempotent(t *testing.T) {
	step := 1
	inputs := []models.FilterState{
		{},
		{Interval: "minute", DateFrom: "-90d"},
		{Interval: "minute"},
		{Events: []models.Entity{event("a", 0)}, FunnelStep: &step, FilterTestAccounts: true},
		{Actions: []models.Entity{{ID: 4, Name: "signed up", Type: models.EntityTypeActions}}, Breakdown: "$os"},
	}

	for _, in := range inputs {
		once := CleanParams(in)
		twice := CleanParams(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("CleanParams not idempotent (-once +twice):\n%s", diff)
		}
	}
}

func TestBuildAPIParams(t *testing.T) {
	filters := twoStepFilters()
	filters.Breakdown = "$browser"
	filters.BreakdownType = "event"
	filters.FromDashboard = true

	t.Run("breakdown disabled", func(t *testing.T) {
		params := BuildAPIParams(filters, ParamOptions{ConversionWindowDays: 7})
		assert.Empty(t, params.Breakdown)
		assert.Empty(t, params.BreakdownType)
		assert.Equal(t, 7, params.FunnelWindowDays)
		assert.True(t, params.FromDashboard)
		assert.False(t, params.Refresh)
	})

	t.Run("breakdown enabled", func(t *testing.T) {
		params := BuildAPIParams(filters, ParamOptions{ConversionWindowDays: 14, BreakdownEnabled: true, Refresh: true})
		assert.Equal(t, "$browser", params.Breakdown)
		assert.Equal(t, "event", params.BreakdownType)
		assert.True(t, params.Refresh)
	})
}

func TestHistogramParams(t *testing.T) {
	base := BuildAPIParams(twoStepFilters(), ParamOptions{ConversionWindowDays: 14})

	all := HistogramParams(base, models.AllSteps)
	assert.Equal(t, models.FunnelVizTimeToConvert, all.FunnelVizType)
	assert.Nil(t, all.FunnelFromStep)
	assert.Nil(t, all.FunnelToStep)

	between := HistogramParams(base, models.HistogramStep{FromStep: 0, ToStep: 1})
	if assert.NotNil(t, between.FunnelFromStep) && assert.NotNil(t, between.FunnelToStep) {
		assert.Equal(t, 0, *between.FunnelFromStep)
		assert.Equal(t, 1, *between.FunnelToStep)
	}
	assert.Empty(t, base.FunnelVizType)
}

func TestFilterPredicates(t *testing.T) {
	assert.False(t, AreFiltersValid(models.FilterState{Events: []models.Entity{event("a", 0)}}))
	assert.True(t, AreFiltersValid(models.FilterState{
		Events:  []models.Entity{event("a", 0)},
		Actions: []models.Entity{{ID: 3, Type: models.EntityTypeActions, Order: 1}},
	}))
	assert.True(t, IsStepsEmpty(models.FilterState{}))
	assert.False(t, IsStepsEmpty(twoStepFilters()))

	assert.True(t, ShowBarGraph(models.DisplayFunnelViz))
	assert.True(t, ShowBarGraph(models.DisplayFunnelsTimeToConvert))
	assert.False(t, ShowBarGraph(models.DisplayActionsLineGraph))
}
