package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Patil2099/posthog/internal/models"
)

func TestAggregateBreakdown_SumsSegments(t *testing.T) {
	chrome := []models.FunnelStep{stepWithTime(0, 10, 0), stepWithTime(1, 4, 30)}
	chrome[0].People = []string{"a", "b"}
	chrome[0].Breakdown = "Chrome"
	safari := []models.FunnelStep{stepWithTime(0, 6, 0), stepWithTime(1, 3, 60)}

	aggregated, err := AggregateBreakdown([][]models.FunnelStep{chrome, safari})
	require.NoError(t, err)
	require.Len(t, aggregated, 2)

	assert.Equal(t, []int{16, 7}, countsOf(aggregated))
	for i, s := range aggregated {
		assert.Equal(t, i, s.Order)
		assert.Nil(t, s.AverageConversionTime)
		assert.Empty(t, s.People)
		assert.NotNil(t, s.People)
		assert.Nil(t, s.Breakdown)
		require.Len(t, s.NestedBreakdown, 2)
	}
	assert.Equal(t, "Chrome", aggregated[0].NestedBreakdown[0].Breakdown)
	assert.Equal(t, 6, aggregated[0].NestedBreakdown[1].CountValue())
}

func TestAggregateBreakdown_SortsByOrder(t *testing.T) {
	first := []models.FunnelStep{step(1, 2), step(0, 5)}
	second := []models.FunnelStep{step(1, 1), step(0, 4)}

	aggregated, err := AggregateBreakdown([][]models.FunnelStep{first, second})
	require.NoError(t, err)
	assert.Equal(t, []int{9, 3}, countsOf(aggregated))
	assert.Equal(t, 0, aggregated[0].Order)
}

func TestAggregateBreakdown_Empty(t *testing.T) {
	aggregated, err := AggregateBreakdown(nil)
	require.NoError(t, err)
	assert.Empty(t, aggregated)
}

func TestAggregateBreakdown_Mismatch(t *testing.T) {
	tests := []struct {
		name     string
		segments [][]models.FunnelStep
	}{
		{
			name:     "different lengths",
			segments: [][]models.FunnelStep{{step(0, 1), step(1, 1)}, {step(0, 1)}},
		},
		{
			name:     "misaligned orders",
			segments: [][]models.FunnelStep{{step(0, 1), step(1, 1)}, {step(1, 1), step(0, 1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AggregateBreakdown(tt.segments)
			assert.ErrorIs(t, err, ErrSegmentMismatch)
		})
	}
}

func TestSteps(t *testing.T) {
	flat := models.FlatResult([]models.FunnelStep{step(1, 3), step(0, 8)})

	steps, err := Steps(flat, false)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 3}, countsOf(steps))

	steps, err = Steps(flat, true)
	require.NoError(t, err)
	assert.Empty(t, steps, "flat result with breakdown active yields no steps")

	segmented := models.BreakdownResult([][]models.FunnelStep{{step(0, 2)}, {step(0, 3)}})
	steps, err = Steps(segmented, false)
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = Steps(segmented, true)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, countsOf(steps))
}

func TestStepsWithCount(t *testing.T) {
	steps := []models.FunnelStep{step(0, 4), {Name: "pending", Order: 1}, step(2, 0)}
	assert.Equal(t, []int{4, 0}, countsOf(StepsWithCount(steps)))
}

func TestComputeConversionMetrics(t *testing.T) {
	steps := []models.FunnelStep{
		stepWithTime(0, 100, 0),
		stepWithTime(1, 40, 12.5),
		stepWithTime(2, 10, 90),
	}

	tests := []struct {
		name      string
		steps     []models.FunnelStep
		selector  models.HistogramStep
		reference StepReference
		expected  models.ConversionMetrics
	}{
		{
			name:      "all steps against total",
			steps:     steps,
			selector:  models.AllSteps,
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{AverageTime: 90, StepRate: 10, TotalRate: 10},
		},
		{
			name:      "all steps against previous",
			steps:     steps,
			selector:  models.AllSteps,
			reference: StepReferencePrevious,
			expected:  models.ConversionMetrics{AverageTime: 90, StepRate: 25, TotalRate: 10},
		},
		{
			name:      "selected interval",
			steps:     steps,
			selector:  models.HistogramStep{FromStep: 0, ToStep: 1},
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{AverageTime: 12.5, StepRate: 40, TotalRate: 10},
		},
		{
			name:      "selector out of range",
			steps:     steps,
			selector:  models.HistogramStep{FromStep: 2, ToStep: 3},
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{},
		},
		{
			name:      "single step",
			steps:     steps[:1],
			selector:  models.AllSteps,
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{},
		},
		{
			name:      "zero first step",
			steps:     []models.FunnelStep{step(0, 0), step(1, 0)},
			selector:  models.AllSteps,
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{},
		},
		{
			name:      "rates rounded to two decimals",
			steps:     []models.FunnelStep{step(0, 3), step(1, 1)},
			selector:  models.AllSteps,
			reference: StepReferenceTotal,
			expected:  models.ConversionMetrics{StepRate: 33.33, TotalRate: 33.33},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeConversionMetrics(tt.steps, tt.selector, tt.reference)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeConversionMetrics_LastFilledStep(t *testing.T) {
	steps := []models.FunnelStep{step(0, 50), step(1, 20), {Name: "no data", Order: 2}}
	got := ComputeConversionMetrics(steps, models.AllSteps, StepReferenceTotal)
	assert.Equal(t, 40.0, got.StepRate)
	assert.Equal(t, 0.0, got.TotalRate)
}

func TestReferenceStep(t *testing.T) {
	steps := []models.FunnelStep{step(0, 9), step(1, 5), step(2, 1)}
	assert.Equal(t, 9, ReferenceStep(steps, StepReferenceTotal, 2).CountValue())
	assert.Equal(t, 5, ReferenceStep(steps, StepReferencePrevious, 2).CountValue())
	assert.Equal(t, 9, ReferenceStep(steps, StepReferencePrevious, 0).CountValue())
}

func TestConversionRate(t *testing.T) {
	steps := []models.FunnelStep{step(0, 200), step(1, 50), step(2, 20)}

	assert.Equal(t, 100.0, ConversionRate(steps, StepReferenceTotal, 0))
	assert.Equal(t, 10.0, ConversionRate(steps, StepReferenceTotal, 2))
	assert.Equal(t, 40.0, ConversionRate(steps, StepReferencePrevious, 2))
	assert.Equal(t, 0.0, ConversionRate(steps, StepReferenceTotal, 3))
	assert.Equal(t, 0.0, ConversionRate([]models.FunnelStep{step(0, 0)}, StepReferenceTotal, 0))
}

func TestHistogramGraphData(t *testing.T) {
	bins := models.TimeConversionBins{Bins: []models.Bin{
		{Start: 0, Count: 5},
		{Start: 3600, Count: 3},
		{Start: 7200, Count: 1},
	}}

	bars := HistogramGraphData(bins)
	require.Len(t, bars, 3)
	assert.Equal(t, models.HistogramBar{ID: 3600, Bin0: 3600, Bin1: 7200, Count: 3}, bars[1])
	assert.Equal(t, 10800.0, bars[2].Bin1)
}

func TestHistogramGraphData_ClampsNegativeStart(t *testing.T) {
	bins := models.TimeConversionBins{Bins: []models.Bin{{Start: -5, Count: 2}, {Start: 5, Count: 1}}}

	bars := HistogramGraphData(bins)
	require.Len(t, bars, 2)
	assert.Equal(t, 0.0, bars[0].Bin0)
	assert.Equal(t, 10.0, bars[0].Bin1)
}

func TestHistogramGraphData_TooFewBins(t *testing.T) {
	assert.Empty(t, HistogramGraphData(models.TimeConversionBins{}))
	assert.Empty(t, HistogramGraphData(models.TimeConversionBins{Bins: []models.Bin{{Start: 10, Count: 1}}}))
}

func TestHistogramStepsDropdown(t *testing.T) {
	steps := []models.FunnelStep{stepWithTime(0, 100, 0), stepWithTime(1, 40, 12), stepWithTime(2, 10, 30)}
	metrics := models.ConversionMetrics{AverageTime: 42}

	options := HistogramStepsDropdown(steps, metrics)
	require.Len(t, options, 3)
	assert.Equal(t, models.HistogramStepOption{Label: "All steps", FromStep: -1, ToStep: -1, Count: 10, AverageConversionTime: 42}, options[0])
	assert.Equal(t, models.HistogramStepOption{Label: "Steps 1 and 2", FromStep: 0, ToStep: 1, Count: 40, AverageConversionTime: 12}, options[1])
	assert.Equal(t, "Steps 2 and 3", options[2].Label)

	assert.Empty(t, HistogramStepsDropdown(steps[:1], metrics))
}

func TestIsValidFunnel(t *testing.T) {
	assert.False(t, IsValidFunnel(nil, models.TimeConversionBins{}))
	assert.True(t, IsValidFunnel([]models.FunnelStep{step(0, 0)}, models.TimeConversionBins{}))
	assert.True(t, IsValidFunnel(nil, models.TimeConversionBins{Bins: []models.Bin{{Start: 1, Count: 1}}}))
}

func TestPeopleSorted(t *testing.T) {
	steps := []models.FunnelStep{step(0, 3), step(1, 2), step(2, 1)}
	steps[0].People = []string{"u1", "u2", "u3"}
	steps[1].People = []string{"u2", "u3"}
	steps[2].People = []string{"u3"}

	people := []models.Person{{UUID: "u1"}, {UUID: "u2"}, {Name: "anonymous"}, {UUID: "u3"}}
	sorted := PeopleSorted(steps, people)

	uuids := make([]string, 0, len(sorted))
	for _, p := range sorted {
		uuids = append(uuids, p.UUID)
	}
	assert.Equal(t, []string{"u3", "u2", "u1", ""}, uuids)
	assert.Equal(t, "u1", people[0].UUID, "input left untouched")
	assert.Nil(t, PeopleSorted(steps, nil))
}

func TestStepReferenceValid(t *testing.T) {
	assert.True(t, StepReferenceTotal.Valid())
	assert.True(t, StepReferencePrevious.Valid())
	assert.False(t, StepReference("first").Valid())
}
