package models

import "encoding/json"

// InsightType identifies the insight a filter set belongs to
type InsightType string

const (
	InsightTrends     InsightType = "TRENDS"
	InsightStickiness InsightType = "STICKINESS"
	InsightLifecycle  InsightType = "LIFECYCLE"
	InsightFunnels    InsightType = "FUNNELS"
	InsightPaths      InsightType = "PATHS"
	InsightSessions   InsightType = "SESSIONS"
	InsightRetention  InsightType = "RETENTION"
)

// ChartDisplayType is the chart a funnel is rendered with
type ChartDisplayType string

const (
	DisplayFunnelViz             ChartDisplayType = "FunnelViz"
	DisplayFunnelsTimeToConvert  ChartDisplayType = "FunnelsTimeToConvert"
	DisplayActionsLineGraph      ChartDisplayType = "ActionsLineGraph"
	DisplayActionsTable          ChartDisplayType = "ActionsTable"
	DisplayActionsBarValue       ChartDisplayType = "ActionsBarValue"
	DisplayActionsLineCumulative ChartDisplayType = "ActionsLineGraphCumulative"
)

// FunnelVizType selects which computation the funnel endpoint runs
type FunnelVizType string

const (
	FunnelVizSteps         FunnelVizType = "steps"
	FunnelVizTimeToConvert FunnelVizType = "time_to_convert"
	FunnelVizTrends        FunnelVizType = "trends"
)

// FunnelOrderType controls how strictly steps must follow each other
type FunnelOrderType string

const (
	FunnelOrderStrict    FunnelOrderType = "strict"
	FunnelOrderUnordered FunnelOrderType = "unordered"
	FunnelOrderOrdered   FunnelOrderType = "ordered"
)

const (
	EntityTypeEvents  = "events"
	EntityTypeActions = "actions"

	PageviewEvent = "$pageview"
)

// Entity is one event or action taking part in a funnel
type Entity struct {
	ID         any              `json:"id" yaml:"id"`
	Name       string           `json:"name,omitempty" yaml:"name,omitempty"`
	Type       string           `json:"type,omitempty" yaml:"type,omitempty"`
	Order      int              `json:"order" yaml:"order"`
	Math       string           `json:"math,omitempty" yaml:"math,omitempty"`
	Properties []PropertyFilter `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// PropertyFilter restricts events or persons by a property value
type PropertyFilter struct {
	Key      string `json:"key" yaml:"key"`
	Value    any    `json:"value" yaml:"value"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
}

// FilterState is the analysis configuration of a funnel. Zero values mean
// "not set" and are dropped when the filters are projected into request
// parameters.
type FilterState struct {
	Insight            InsightType      `json:"insight,omitempty" yaml:"insight,omitempty"`
	DateFrom           string           `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo             string           `json:"date_to,omitempty" yaml:"date_to,omitempty"`
	Actions            []Entity         `json:"actions,omitempty" yaml:"actions,omitempty"`
	Events             []Entity         `json:"events,omitempty" yaml:"events,omitempty"`
	Display            ChartDisplayType `json:"display,omitempty" yaml:"display,omitempty"`
	Interval           string           `json:"interval,omitempty" yaml:"interval,omitempty"`
	Properties         []PropertyFilter `json:"properties,omitempty" yaml:"properties,omitempty"`
	FilterTestAccounts bool             `json:"filter_test_accounts,omitempty" yaml:"filter_test_accounts,omitempty"`
	FunnelStep         *int             `json:"funnel_step,omitempty" yaml:"funnel_step,omitempty"`
	FunnelVizType      FunnelVizType    `json:"funnel_viz_type,omitempty" yaml:"funnel_viz_type,omitempty"`
	FunnelOrderType    FunnelOrderType  `json:"funnel_order_type,omitempty" yaml:"funnel_order_type,omitempty"`
	FunnelFromStep     *int             `json:"funnel_from_step,omitempty" yaml:"funnel_from_step,omitempty"`
	FunnelToStep       *int             `json:"funnel_to_step,omitempty" yaml:"funnel_to_step,omitempty"`
	Breakdown          string           `json:"breakdown,omitempty" yaml:"breakdown,omitempty"`
	BreakdownType      string           `json:"breakdown_type,omitempty" yaml:"breakdown_type,omitempty"`
	FromDashboard      bool             `json:"from_dashboard,omitempty" yaml:"from_dashboard,omitempty"`
	NewEntity          []Entity         `json:"new_entity,omitempty" yaml:"new_entity,omitempty"`
}

// Merge overlays the set fields of other onto a copy of f
func (f FilterState) Merge(other FilterState) FilterState {
	out := f
	if other.Insight != "" {
		out.Insight = other.Insight
	}
	if other.DateFrom != "" {
		out.DateFrom = other.DateFrom
	}
	if other.DateTo != "" {
		out.DateTo = other.DateTo
	}
	if other.Actions != nil {
		out.Actions = other.Actions
	}
	if other.Events != nil {
		out.Events = other.Events
	}
	if other.Display != "" {
		out.Display = other.Display
	}
	if other.Interval != "" {
		out.Interval = other.Interval
	}
	if other.Properties != nil {
		out.Properties = other.Properties
	}
	if other.FilterTestAccounts {
		out.FilterTestAccounts = true
	}
	if other.FunnelStep != nil {
		out.FunnelStep = other.FunnelStep
	}
	if other.FunnelVizType != "" {
		out.FunnelVizType = other.FunnelVizType
	}
	if other.FunnelOrderType != "" {
		out.FunnelOrderType = other.FunnelOrderType
	}
	if other.FunnelFromStep != nil {
		out.FunnelFromStep = other.FunnelFromStep
	}
	if other.FunnelToStep != nil {
		out.FunnelToStep = other.FunnelToStep
	}
	if other.Breakdown != "" {
		out.Breakdown = other.Breakdown
	}
	if other.BreakdownType != "" {
		out.BreakdownType = other.BreakdownType
	}
	if other.FromDashboard {
		out.FromDashboard = true
	}
	if other.NewEntity != nil {
		out.NewEntity = other.NewEntity
	}
	return out
}

// StepCount returns the number of events and actions in the funnel
func (f FilterState) StepCount() int {
	return len(f.Events) + len(f.Actions)
}

// Equal reports whether both filter sets serialize identically
func (f FilterState) Equal(other FilterState) bool {
	a, errA := json.Marshal(f)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// RequestParams is the body sent to the funnel endpoint. Refresh travels as
// a query flag and is never serialized.
type RequestParams struct {
	FilterState
	FunnelWindowDays int  `json:"funnel_window_days,omitempty"`
	Refresh          bool `json:"-"`
}
