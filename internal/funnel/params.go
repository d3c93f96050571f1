package funnel

import "github.com/Patil2099/posthog/internal/models"

// Date ranges too wide to be bucketed by hour
var hourlyDisabled = map[string]bool{
	"-90d":   true,
	"yStart": true,
	"all":    true,
}

// AutocorrectInterval returns an interval consistent with the date range
func AutocorrectInterval(filters models.FilterState) string {
	interval := filters.Interval
	if interval == "" {
		return "day"
	}
	if interval == "minute" {
		// legacy option, no longer computed by the backend
		interval = "hour"
	}
	if interval == "hour" && hourlyDisabled[filters.DateFrom] {
		return "day"
	}
	return interval
}

// CleanParams projects the fields the funnel endpoint understands out of
// filters. Unset fields are dropped; interval and insight are always set.
// Applying it to its own output returns the same value.
func CleanParams(filters models.FilterState) models.FilterState {
	cleaned := models.FilterState{
		DateFrom:           filters.DateFrom,
		DateTo:             filters.DateTo,
		Actions:            filters.Actions,
		Events:             filters.Events,
		Display:            filters.Display,
		Properties:         filters.Properties,
		FilterTestAccounts: filters.FilterTestAccounts,
		FunnelStep:         copyInt(filters.FunnelStep),
		FunnelVizType:      filters.FunnelVizType,
		FunnelOrderType:    filters.FunnelOrderType,
		FunnelFromStep:     copyInt(filters.FunnelFromStep),
		FunnelToStep:       copyInt(filters.FunnelToStep),
		Breakdown:          filters.Breakdown,
		BreakdownType:      filters.BreakdownType,
		Interval:           AutocorrectInterval(filters),
		Insight:            models.InsightFunnels,
	}
	if filters.FunnelStep != nil {
		cleaned.FunnelToStep = copyInt(filters.FunnelStep)
	}
	return cleaned
}

// ParamOptions carries the store state that shapes request parameters
type ParamOptions struct {
	ConversionWindowDays int
	BreakdownEnabled     bool
	Refresh              bool
}

// BuildAPIParams derives the funnel request from filters
func BuildAPIParams(filters models.FilterState, opts ParamOptions) models.RequestParams {
	params := models.RequestParams{
		FilterState:      CleanParams(filters),
		FunnelWindowDays: opts.ConversionWindowDays,
		Refresh:          opts.Refresh,
	}
	params.FromDashboard = filters.FromDashboard
	if !opts.BreakdownEnabled {
		params.Breakdown = ""
		params.BreakdownType = ""
	}
	return params
}

// HistogramParams turns a funnel request into a time-to-convert request.
// Step bounds are omitted when the selector covers all steps.
func HistogramParams(params models.RequestParams, step models.HistogramStep) models.RequestParams {
	out := params
	out.FunnelVizType = models.FunnelVizTimeToConvert
	if !step.IsAllSteps() {
		out.FunnelFromStep = intPtr(step.FromStep)
		out.FunnelToStep = intPtr(step.ToStep)
	}
	return out
}

// AreFiltersValid reports whether the filters describe at least two steps
func AreFiltersValid(filters models.FilterState) bool {
	return filters.StepCount() > 1
}

// IsStepsEmpty reports whether no event or action is selected
func IsStepsEmpty(filters models.FilterState) bool {
	return filters.StepCount() == 0
}

// ShowBarGraph reports whether the display renders as a bar graph
func ShowBarGraph(display models.ChartDisplayType) bool {
	return display == models.DisplayFunnelViz || display == models.DisplayFunnelsTimeToConvert
}

func intPtr(v int) *int {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	return intPtr(*v)
}
