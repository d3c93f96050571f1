package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FunnelStep is one stage of a funnel as returned by the backend
type FunnelStep struct {
	ActionID              any          `json:"action_id,omitempty"`
	Name                  string       `json:"name"`
	Order                 int          `json:"order"`
	Count                 *int         `json:"count"`
	Type                  string       `json:"type,omitempty"`
	AverageConversionTime *float64     `json:"average_conversion_time"`
	People                []string     `json:"people,omitempty"`
	Breakdown             any          `json:"breakdown,omitempty"`
	NestedBreakdown       []FunnelStep `json:"nested_breakdown,omitempty"`
}

// HasCount reports whether the backend sent a numeric count for the step
func (s FunnelStep) HasCount() bool {
	return s.Count != nil
}

// CountValue returns the step count, or 0 when it is missing
func (s FunnelStep) CountValue() int {
	if s.Count == nil {
		return 0
	}
	return *s.Count
}

// ResultKind discriminates the two shapes of a raw funnel result
type ResultKind int

const (
	// ResultFlat is an unsegmented, ordered list of steps
	ResultFlat ResultKind = iota
	// ResultBreakdown holds one list of steps per breakdown value
	ResultBreakdown
)

func (k ResultKind) String() string {
	if k == ResultBreakdown {
		return "breakdown"
	}
	return "flat"
}

// RawFunnelResult is the funnel endpoint's result payload. The backend sends
// either []FunnelStep or [][]FunnelStep depending on whether a breakdown is
// active; Kind records which one was received.
type RawFunnelResult struct {
	Kind     ResultKind
	Steps    []FunnelStep
	Segments [][]FunnelStep
}

// FlatResult wraps unsegmented steps
func FlatResult(steps []FunnelStep) RawFunnelResult {
	return RawFunnelResult{Kind: ResultFlat, Steps: steps}
}

// BreakdownResult wraps per-segment steps
func BreakdownResult(segments [][]FunnelStep) RawFunnelResult {
	return RawFunnelResult{Kind: ResultBreakdown, Segments: segments}
}

// IsEmpty reports whether the result carries no steps at all
func (r RawFunnelResult) IsEmpty() bool {
	return len(r.Steps) == 0 && len(r.Segments) == 0
}

// UnmarshalJSON discriminates flat and segmented payloads by peeking at the
// first element. An empty array decodes as an empty flat result.
func (r *RawFunnelResult) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = RawFunnelResult{}
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return fmt.Errorf("funnel result must be an array: %w", err)
	}
	if len(elems) == 0 {
		*r = FlatResult([]FunnelStep{})
		return nil
	}

	first := bytes.TrimSpace(elems[0])
	switch {
	case len(first) > 0 && first[0] == '[':
		var segments [][]FunnelStep
		if err := json.Unmarshal(trimmed, &segments); err != nil {
			return fmt.Errorf("decode breakdown funnel result: %w", err)
		}
		*r = BreakdownResult(segments)
	case len(first) > 0 && first[0] == '{':
		var steps []FunnelStep
		if err := json.Unmarshal(trimmed, &steps); err != nil {
			return fmt.Errorf("decode funnel result: %w", err)
		}
		*r = FlatResult(steps)
	default:
		return errors.New("funnel result elements must be objects or arrays")
	}
	return nil
}

// MarshalJSON writes the result back in the backend's shape
func (r RawFunnelResult) MarshalJSON() ([]byte, error) {
	if r.Kind == ResultBreakdown {
		if r.Segments == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.Segments)
	}
	if r.Steps == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Steps)
}

// Bin is one histogram bucket: conversion time in seconds and the number of
// entities that converted within it.
type Bin struct {
	Start float64
	Count int
}

// UnmarshalJSON reads a [start, count] pair, treating nulls as zero
func (b *Bin) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode bin: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("bin must have 2 elements, got %d", len(pair))
	}
	*b = Bin{}
	if pair[0] != nil {
		b.Start = *pair[0]
	}
	if pair[1] != nil {
		b.Count = int(*pair[1])
	}
	return nil
}

// MarshalJSON writes the bin as a [start, count] pair
func (b Bin) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.Start, b.Count})
}

// TimeConversionBins is the time-to-convert histogram
type TimeConversionBins struct {
	Bins                  []Bin   `json:"bins"`
	AverageConversionTime float64 `json:"average_conversion_time"`
}

// FunnelResponse is the envelope returned by the funnel endpoint. Result is
// kept raw because its shape depends on the requested viz type.
type FunnelResponse struct {
	Result      json.RawMessage `json:"result"`
	Loading     bool            `json:"loading"`
	LastRefresh *time.Time      `json:"last_refresh"`
}

// HistogramStep selects the step interval the histogram covers. -1 on both
// ends means all steps.
type HistogramStep struct {
	FromStep int `json:"from_step"`
	ToStep   int `json:"to_step"`
}

// AllSteps is the selector covering the whole funnel
var AllSteps = HistogramStep{FromStep: -1, ToStep: -1}

// IsAllSteps reports whether the selector covers the whole funnel
func (h HistogramStep) IsAllSteps() bool {
	return h.FromStep == -1
}

// ConversionMetrics are derived from the steps and the histogram selector
type ConversionMetrics struct {
	AverageTime float64 `json:"average_time"`
	StepRate    float64 `json:"step_rate"`
	TotalRate   float64 `json:"total_rate"`
}

// HistogramBar is one bar of the time-to-convert chart
type HistogramBar struct {
	ID    float64 `json:"id"`
	Bin0  float64 `json:"bin0"`
	Bin1  float64 `json:"bin1"`
	Count int     `json:"count"`
}

// HistogramStepOption is an entry of the histogram step picker
type HistogramStepOption struct {
	Label                 string  `json:"label"`
	FromStep              int     `json:"from_step"`
	ToStep                int     `json:"to_step"`
	Count                 int     `json:"count"`
	AverageConversionTime float64 `json:"average_conversion_time"`
}

// LoadedResults is what a successful load commits to the store
type LoadedResults struct {
	Results               RawFunnelResult    `json:"results"`
	TimeConversionResults TimeConversionBins `json:"time_conversion_results"`
	LastRefresh           *time.Time         `json:"last_refresh,omitempty"`
}

// EmptyResults is the state before any load and after failures
func EmptyResults() LoadedResults {
	return LoadedResults{
		Results:               FlatResult([]FunnelStep{}),
		TimeConversionResults: TimeConversionBins{Bins: []Bin{}},
	}
}
