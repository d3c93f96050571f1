package funnel

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/Patil2099/posthog/internal/models"
)

// ErrSegmentMismatch is returned when breakdown segments cannot be aligned
// step by step.
var ErrSegmentMismatch = errors.New("breakdown segments are not aligned")

// StepReference decides which step conversion rates are measured against
type StepReference string

const (
	// StepReferenceTotal compares against the first step of the funnel
	StepReferenceTotal StepReference = "total"
	// StepReferencePrevious compares against the step before
	StepReferencePrevious StepReference = "previous"
)

// Valid reports whether r is a known reference policy
func (r StepReference) Valid() bool {
	return r == StepReferenceTotal || r == StepReferencePrevious
}

// AggregateBreakdown folds per-segment steps into one funnel. Each output
// step's count is the sum over segments at that ordinal and its nested
// breakdown lists every segment's step. Conversion times are not summable
// and are dropped.
func AggregateBreakdown(segments [][]models.FunnelStep) ([]models.FunnelStep, error) {
	if len(segments) == 0 {
		return []models.FunnelStep{}, nil
	}

	base := segments[0]
	for i, segment := range segments[1:] {
		if len(segment) != len(base) {
			return nil, fmt.Errorf("%w: segment %d has %d steps, expected %d",
				ErrSegmentMismatch, i+1, len(segment), len(base))
		}
	}

	aggregated := make([]models.FunnelStep, 0, len(base))
	for j, step := range base {
		total := 0
		nested := make([]models.FunnelStep, 0, len(segments))
		for i, segment := range segments {
			if segment[j].Order != step.Order {
				return nil, fmt.Errorf("%w: segment %d step %d has order %d, expected %d",
					ErrSegmentMismatch, i, j, segment[j].Order, step.Order)
			}
			total += segment[j].CountValue()
			nested = append(nested, segment[j])
		}

		agg := step
		agg.Count = intPtr(total)
		agg.NestedBreakdown = nested
		agg.AverageConversionTime = nil
		agg.People = []string{}
		agg.Breakdown = nil
		aggregated = append(aggregated, agg)
	}

	sortByOrder(aggregated)
	return aggregated, nil
}

// Steps returns the funnel steps in order. With a breakdown active the
// segments are aggregated; a result of the wrong shape yields no steps.
func Steps(result models.RawFunnelResult, breakdownActive bool) ([]models.FunnelStep, error) {
	if breakdownActive {
		if result.Kind != models.ResultBreakdown {
			return []models.FunnelStep{}, nil
		}
		return AggregateBreakdown(result.Segments)
	}
	if result.Kind != models.ResultFlat {
		return []models.FunnelStep{}, nil
	}
	steps := slices.Clone(result.Steps)
	if steps == nil {
		steps = []models.FunnelStep{}
	}
	sortByOrder(steps)
	return steps, nil
}

// StepsWithCount keeps only the steps the backend sent a count for
func StepsWithCount(steps []models.FunnelStep) []models.FunnelStep {
	out := make([]models.FunnelStep, 0, len(steps))
	for _, step := range steps {
		if step.HasCount() {
			out = append(out, step)
		}
	}
	return out
}

// ReferenceStep returns the step conversions at index are measured against
func ReferenceStep(steps []models.FunnelStep, reference StepReference, index int) models.FunnelStep {
	stepIndex := 0
	if reference == StepReferencePrevious {
		stepIndex = max(index-1, 0)
	}
	return steps[stepIndex]
}

// ConversionRate is the percentage of the reference step that reached the
// step at index
func ConversionRate(steps []models.FunnelStep, reference StepReference, index int) float64 {
	if !inRange(steps, index) {
		return 0
	}
	return calcPercentage(steps[index].CountValue(), ReferenceStep(steps, reference, index).CountValue())
}

// lastFilledStep returns the index of the last step carrying a count
func lastFilledStep(steps []models.FunnelStep) int {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].HasCount() {
			return i
		}
	}
	return 0
}

// ComputeConversionMetrics derives the average time and conversion rates
// for the interval the histogram selector picks.
func ComputeConversionMetrics(steps []models.FunnelStep, selector models.HistogramStep, reference StepReference) models.ConversionMetrics {
	if len(steps) < 2 {
		return models.ConversionMetrics{}
	}

	var from, to models.FunnelStep
	if selector.IsAllSteps() {
		toIndex := lastFilledStep(steps)
		to = steps[toIndex]
		from = ReferenceStep(steps, reference, toIndex)
	} else {
		if !inRange(steps, selector.FromStep) || !inRange(steps, selector.ToStep) {
			return models.ConversionMetrics{}
		}
		from = steps[selector.FromStep]
		to = steps[selector.ToStep]
	}

	averageTime := 0.0
	if to.AverageConversionTime != nil {
		averageTime = *to.AverageConversionTime
	}

	return models.ConversionMetrics{
		AverageTime: averageTime,
		StepRate:    calcPercentage(to.CountValue(), from.CountValue()),
		TotalRate:   calcPercentage(steps[len(steps)-1].CountValue(), steps[0].CountValue()),
	}
}

// HistogramGraphData turns bins into chart bars. The bin width is taken from
// the first two bins; fewer than two bins produce no bars.
func HistogramGraphData(bins models.TimeConversionBins) []models.HistogramBar {
	if len(bins.Bins) < 2 {
		return []models.HistogramBar{}
	}

	width := bins.Bins[1].Start - bins.Bins[0].Start
	bars := make([]models.HistogramBar, 0, len(bins.Bins))
	for _, bin := range bins.Bins {
		start := math.Max(0, bin.Start)
		bars = append(bars, models.HistogramBar{
			ID:    start,
			Bin0:  start,
			Bin1:  start + width,
			Count: bin.Count,
		})
	}
	return bars
}

// HistogramStepsDropdown lists the intervals the histogram can be drawn for
func HistogramStepsDropdown(steps []models.FunnelStep, metrics models.ConversionMetrics) []models.HistogramStepOption {
	options := make([]models.HistogramStepOption, 0, len(steps))
	if len(steps) > 1 {
		options = append(options, models.HistogramStepOption{
			Label:                 "All steps",
			FromStep:              -1,
			ToStep:                -1,
			Count:                 steps[len(steps)-1].CountValue(),
			AverageConversionTime: metrics.AverageTime,
		})
	}

	for idx := 0; idx+1 < len(steps); idx++ {
		next := steps[idx+1]
		avg := 0.0
		if next.AverageConversionTime != nil {
			avg = *next.AverageConversionTime
		}
		options = append(options, models.HistogramStepOption{
			Label:                 fmt.Sprintf("Steps %d and %d", idx+1, idx+2),
			FromStep:              idx,
			ToStep:                idx + 1,
			Count:                 next.CountValue(),
			AverageConversionTime: avg,
		})
	}
	return options
}

// IsValidFunnel reports whether there is anything to draw
func IsValidFunnel(stepsWithCount []models.FunnelStep, bins models.TimeConversionBins) bool {
	return (len(stepsWithCount) > 0 && stepsWithCount[0].CountValue() > -1) || len(bins.Bins) > 0
}

// PeopleSorted orders people by how many steps they reached, furthest first
func PeopleSorted(steps []models.FunnelStep, people []models.Person) []models.Person {
	if people == nil {
		return nil
	}

	score := func(person models.Person) int {
		if person.UUID == "" {
			return 0
		}
		n := 0
		for _, step := range steps {
			if slices.Contains(step.People, person.UUID) {
				n++
			}
		}
		return n
	}

	sorted := slices.Clone(people)
	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})
	return sorted
}

func calcPercentage(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return math.Round(float64(numerator)/float64(denominator)*100*100) / 100
}

func inRange(steps []models.FunnelStep, index int) bool {
	return index >= 0 && index < len(steps)
}

func sortByOrder(steps []models.FunnelStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
}
