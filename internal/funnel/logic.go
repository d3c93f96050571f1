package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
)

const (
	DefaultConversionWindowDays     = 14
	DefaultConversionWindowDebounce = time.Second
)

var (
	// ErrSuperseded is returned by a load or debounced action that a newer
	// one replaced before it could commit. Callers treat it as a no-op.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrInvalidFilters is returned when fewer than two steps are selected
	ErrInvalidFilters = errors.New("a funnel needs at least two steps")
	// ErrFunnelResults wraps failures of the primary funnel request
	ErrFunnelResults = errors.New("could not load funnel results")
	// ErrTimeConversionBins wraps failures of the histogram request
	ErrTimeConversionBins = errors.New("could not load funnel time conversion bins")
)

// Options configures a Logic
type Options struct {
	Backend  Backend
	Reporter Reporter
	Cache    *ResultCache
	Logger   *zap.Logger

	PollInterval             time.Duration
	PollTimeout              time.Duration
	ConversionWindowDebounce time.Duration

	// Filters the logic starts with
	Filters models.FilterState
	// CachedResults are served instead of fetching while Filters is unchanged
	CachedResults *models.RawFunnelResult
	// DashboardItemID marks a logic owned by a dashboard; it does not sync
	// with the URL.
	DashboardItemID string
	// Refresh forces recomputation on every request
	Refresh bool
	// ClickhouseFeatures enables breakdowns and automatic recalculation
	// whenever filters change.
	ClickhouseFeatures bool
}

// Logic holds the state of one funnel view
type Logic struct {
	key      string
	opts     Options
	backend  Backend
	reporter Reporter
	poller   *Poller
	logger   *zap.Logger

	mu                   sync.Mutex
	filters              models.FilterState
	conversionWindowDays int
	stepReference        StepReference
	histogramStep        models.HistogramStep
	raw                  models.LoadedResults
	loading              bool
	lastErr              error
	people               []models.Person
	urlValues            url.Values
	generation           uint64
	windowGeneration     uint64
	closed               bool
}

// NewLogic creates the state for the funnel view identified by key
func NewLogic(key string, opts Options) *Logic {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	if opts.ConversionWindowDebounce <= 0 {
		opts.ConversionWindowDebounce = DefaultConversionWindowDebounce
	}

	return &Logic{
		key:                  key,
		opts:                 opts,
		backend:              opts.Backend,
		reporter:             reporter,
		poller:               NewPoller(opts.Backend, opts.PollInterval, opts.PollTimeout, opts.Cache),
		logger:               logger.With(zap.String("funnel", key)),
		filters:              opts.Filters,
		conversionWindowDays: DefaultConversionWindowDays,
		stepReference:        StepReferenceTotal,
		histogramStep:        models.AllSteps,
		raw:                  models.EmptyResults(),
	}
}

// Key returns the identifier the logic was created with
func (l *Logic) Key() string {
	return l.key
}

// SetFilters replaces or merges the filters. The funnel is reloaded when
// refresh is set or automatic recalculation is enabled.
func (l *Logic) SetFilters(ctx context.Context, filters models.FilterState, refresh, merge bool) error {
	l.mu.Lock()
	if merge {
		l.filters = l.filters.Merge(filters)
	} else {
		l.filters = filters
	}
	shouldLoad := refresh || l.opts.ClickhouseFeatures
	l.syncURLLocked()
	l.raw.LastRefresh = nil
	l.mu.Unlock()

	if !shouldLoad {
		return nil
	}
	_, err := l.LoadResults(ctx, false)
	return err
}

// ClearFunnel resets the filters and results. Loads in flight are
// superseded.
func (l *Logic) ClearFunnel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.filters = models.FilterState{NewEntity: l.filters.NewEntity}
	l.people = nil
	l.raw = models.EmptyResults()
	l.loading = false
	l.lastErr = nil
	if l.opts.DashboardItemID == "" {
		l.urlValues = url.Values{"insight": []string{string(models.InsightFunnels)}}
	}
}

// LoadResults fetches the funnel and, for the time-to-convert display, the
// histogram. On failure the stored results are reset to empty and the error
// is returned alongside them. If a newer load or a clear happened meanwhile,
// nothing is committed and ErrSuperseded is returned.
func (l *Logic) LoadResults(ctx context.Context, refresh bool) (*models.LoadedResults, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrSuperseded
	}
	l.generation++
	gen := l.generation
	filters := l.filters

	if l.opts.CachedResults != nil && !refresh && filters.Equal(l.opts.Filters) {
		loaded := models.EmptyResults()
		loaded.Results = *l.opts.CachedResults
		l.raw = loaded
		l.mu.Unlock()
		return &loaded, nil
	}
	if !AreFiltersValid(filters) {
		l.mu.Unlock()
		return nil, ErrInvalidFilters
	}

	params := l.apiParamsLocked()
	params.Refresh = params.Refresh || refresh
	histogramStep := l.histogramStep
	l.loading = true
	l.mu.Unlock()

	queryID := uuid.NewString()
	l.reporter.StartQuery(queryID)

	var (
		primary *models.FunnelResponse
		result  models.RawFunnelResult
		bins    models.TimeConversionBins
	)
	// Independent polls: a histogram failure leaves the funnel poll running.
	var g errgroup.Group
	g.Go(func() error {
		resp, decoded, err := l.loadFunnelResults(ctx, gen, params)
		if err != nil {
			return err
		}
		primary, result = resp, decoded
		return nil
	})
	g.Go(func() error {
		decoded, err := l.loadBinsResults(ctx, params, histogramStep, filters.Display)
		if err != nil {
			return err
		}
		bins = decoded
		return nil
	})
	err := g.Wait()

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		l.logger.Debug("discarding superseded funnel load", zap.Uint64("generation", gen))
		return nil, ErrSuperseded
	}
	l.loading = false

	if err != nil {
		l.raw = models.EmptyResults()
		l.lastErr = err
		empty := l.raw
		l.mu.Unlock()
		l.reporter.EndQuery(queryID, models.InsightFunnels, nil, err)
		l.logger.Error("funnel load failed", zap.Error(err))
		return &empty, err
	}

	loaded := models.LoadedResults{
		Results:               result,
		TimeConversionResults: bins,
		LastRefresh:           primary.LastRefresh,
	}
	l.raw = loaded
	l.lastErr = nil
	loadPeople := !l.opts.ClickhouseFeatures
	l.mu.Unlock()

	l.reporter.EndQuery(queryID, models.InsightFunnels, primary.LastRefresh, nil)

	if loadPeople {
		steps := l.StepsWithCount()
		if len(steps) > 0 && len(steps[0].People) > 0 {
			if _, err := l.LoadPeople(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				l.logger.Warn("failed to load funnel people", zap.Error(err))
			}
		}
	}
	return &loaded, nil
}

func (l *Logic) loadFunnelResults(ctx context.Context, gen uint64, params models.RequestParams) (*models.FunnelResponse, models.RawFunnelResult, error) {
	eventCount, actionCount := len(params.Events), len(params.Actions)

	resp, err := l.poller.Poll(ctx, params)
	if err == nil {
		var result models.RawFunnelResult
		if decodeErr := json.Unmarshal(resp.Result, &result); decodeErr != nil {
			err = fmt.Errorf("decode funnel result: %w", decodeErr)
		} else {
			l.reporter.ReportFunnelCalculated(eventCount, actionCount, params.Interval, true, "")
			return resp, result, nil
		}
	}

	if l.isStale(gen) {
		return nil, models.RawFunnelResult{}, ErrSuperseded
	}
	l.reporter.ReportFunnelCalculated(eventCount, actionCount, params.Interval, false, err.Error())
	return nil, models.RawFunnelResult{}, fmt.Errorf("%w: %w", ErrFunnelResults, err)
}

func (l *Logic) loadBinsResults(ctx context.Context, params models.RequestParams, step models.HistogramStep, display models.ChartDisplayType) (models.TimeConversionBins, error) {
	empty := models.TimeConversionBins{Bins: []models.Bin{}}
	if display != models.DisplayFunnelsTimeToConvert {
		return empty, nil
	}

	resp, err := l.poller.Poll(ctx, HistogramParams(params, step))
	if err != nil {
		return empty, fmt.Errorf("%w: %w", ErrTimeConversionBins, err)
	}
	var bins models.TimeConversionBins
	if err := json.Unmarshal(resp.Result, &bins); err != nil {
		return empty, fmt.Errorf("%w: %w", ErrTimeConversionBins, err)
	}
	if bins.Bins == nil {
		bins.Bins = []models.Bin{}
	}
	return bins, nil
}

func (l *Logic) isStale(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen != l.generation
}

// LoadPeople fetches the profiles of everyone who entered the funnel
func (l *Logic) LoadPeople(ctx context.Context) ([]models.Person, error) {
	steps := l.StepsWithCount()
	if len(steps) == 0 || len(steps[0].People) == 0 {
		l.mu.Lock()
		l.people = []models.Person{}
		l.mu.Unlock()
		return []models.Person{}, nil
	}

	l.mu.Lock()
	gen := l.generation
	l.mu.Unlock()

	people, err := l.backend.Persons(ctx, steps[0].People)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return nil, ErrSuperseded
	}
	l.people = people
	return people, nil
}

// SaveInsight persists the current filters under name
func (l *Logic) SaveInsight(ctx context.Context, name string) (*models.Insight, error) {
	if name == "" {
		return nil, errors.New("insight name is required")
	}
	insight, err := l.backend.CreateInsight(ctx, models.InsightRequest{
		Filters: l.Filters(),
		Name:    name,
		Saved:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("save insight: %w", err)
	}
	l.logger.Info("funnel insight saved", zap.String("name", name), zap.Int("insight_id", insight.ID))
	return insight, nil
}

// SetConversionWindowDays accepts 1 to 365 days, rounded; other values are
// ignored. It reports whether the value was accepted.
func (l *Logic) SetConversionWindowDays(days float64) bool {
	if !(days >= 1 && days <= 365) {
		return false
	}
	l.mu.Lock()
	l.conversionWindowDays = int(math.Round(days))
	l.mu.Unlock()
	return true
}

// LoadConversionWindow waits for the debounce delay, then applies days and
// reloads. A newer call during the delay supersedes this one.
func (l *Logic) LoadConversionWindow(ctx context.Context, days float64) error {
	l.mu.Lock()
	l.windowGeneration++
	gen := l.windowGeneration
	l.mu.Unlock()

	timer := time.NewTimer(l.opts.ConversionWindowDebounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	l.mu.Lock()
	stale := gen != l.windowGeneration
	l.mu.Unlock()
	if stale {
		return ErrSuperseded
	}

	l.SetConversionWindowDays(days)
	_, err := l.LoadResults(ctx, false)
	return err
}

// SetStepReference changes which step conversion rates are relative to
func (l *Logic) SetStepReference(reference StepReference) error {
	if !reference.Valid() {
		return fmt.Errorf("unknown step reference %q", reference)
	}
	l.mu.Lock()
	l.stepReference = reference
	l.mu.Unlock()
	return nil
}

// ChangeHistogramStep selects the histogram interval and reloads
func (l *Logic) ChangeHistogramStep(ctx context.Context, fromStep, toStep int) error {
	l.mu.Lock()
	l.histogramStep = models.HistogramStep{FromStep: fromStep, ToStep: toStep}
	l.mu.Unlock()

	_, err := l.LoadResults(ctx, false)
	return err
}

// ApplyURL reacts to filters arriving through the URL query. It reports
// whether the filters changed; dashboard-owned logics and other insight
// types are ignored.
func (l *Logic) ApplyURL(ctx context.Context, values url.Values, eventNames []string) (bool, error) {
	if l.opts.DashboardItemID != "" {
		return false, nil
	}
	incoming, err := FiltersFromQuery(values)
	if err != nil {
		return false, err
	}
	if incoming.Insight != models.InsightFunnels {
		return false, nil
	}

	current := l.Filters()
	fromURL := urlComparable{
		DateFrom:   incoming.DateFrom,
		DateTo:     incoming.DateTo,
		Actions:    incoming.Actions,
		Events:     incoming.Events,
		Display:    incoming.Display,
		Interval:   incoming.Interval,
		Properties: incoming.Properties,
	}
	existing := urlComparable{
		DateFrom:   current.DateFrom,
		DateTo:     current.DateTo,
		Actions:    current.Actions,
		Events:     current.Events,
		Display:    current.Display,
		Interval:   current.Interval,
		Properties: current.Properties,
	}
	if urlFieldsEqual(fromURL, existing) {
		return false, nil
	}

	cleaned := CleanParams(incoming)
	if IsStepsEmpty(cleaned) {
		event := DefaultEvent(eventNames)
		cleaned.Events = []models.Entity{{
			ID:    event,
			Name:  event,
			Type:  models.EntityTypeEvents,
			Order: 0,
		}}
	}

	err = l.SetFilters(ctx, cleaned, true, false)
	if errors.Is(err, ErrInvalidFilters) {
		// a single-step funnel from the URL is kept but not computed
		err = nil
	}
	return true, err
}

// Close supersedes any load in flight; further loads are refused
func (l *Logic) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.closed = true
	l.loading = false
}

// Filters returns a copy of the current filters
func (l *Logic) Filters() models.FilterState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filters
}

// ConversionWindowDays returns the conversion window sent to the backend
func (l *Logic) ConversionWindowDays() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversionWindowDays
}

// StepReference returns the active reference policy
func (l *Logic) StepReference() StepReference {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stepReference
}

// HistogramStep returns the active histogram selector
func (l *Logic) HistogramStep() models.HistogramStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.histogramStep
}

// IsLoading reports whether a load is in flight
func (l *Logic) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// LastError returns the error of the last committed load
func (l *Logic) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// RawResults returns the last committed load
func (l *Logic) RawResults() models.LoadedResults {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.raw
}

// Results returns the raw funnel result
func (l *Logic) Results() models.RawFunnelResult {
	return l.RawResults().Results
}

// TimeConversionBins returns the histogram of the last load
func (l *Logic) TimeConversionBins() models.TimeConversionBins {
	return l.RawResults().TimeConversionResults
}

// Steps returns the ordered steps, aggregated when a breakdown is active
func (l *Logic) Steps() ([]models.FunnelStep, error) {
	l.mu.Lock()
	result, breakdown := l.raw.Results, l.filters.Breakdown != ""
	l.mu.Unlock()
	return Steps(result, breakdown)
}

// StepsWithNestedBreakdown returns the aggregated breakdown steps, or none
// when the result is not segmented.
func (l *Logic) StepsWithNestedBreakdown() ([]models.FunnelStep, error) {
	result := l.Results()
	if result.Kind != models.ResultBreakdown {
		return []models.FunnelStep{}, nil
	}
	return AggregateBreakdown(result.Segments)
}

// StepsWithCount returns the ordered steps that carry a count. Steps that
// cannot be derived count as none.
func (l *Logic) StepsWithCount() []models.FunnelStep {
	steps, err := l.Steps()
	if err != nil {
		l.logger.Warn("cannot derive funnel steps", zap.Error(err))
		return []models.FunnelStep{}
	}
	return StepsWithCount(steps)
}

// ConversionMetrics derives the rates for the selected histogram interval
func (l *Logic) ConversionMetrics() models.ConversionMetrics {
	steps := l.StepsWithCount()
	return ComputeConversionMetrics(steps, l.HistogramStep(), l.StepReference())
}

// HistogramGraphData returns the bars of the time-to-convert chart
func (l *Logic) HistogramGraphData() []models.HistogramBar {
	return HistogramGraphData(l.TimeConversionBins())
}

// HistogramStepsDropdown returns the selectable histogram intervals
func (l *Logic) HistogramStepsDropdown() []models.HistogramStepOption {
	return HistogramStepsDropdown(l.StepsWithCount(), l.ConversionMetrics())
}

// People returns the loaded profiles in load order
func (l *Logic) People() []models.Person {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.people
}

// PeopleSorted returns the loaded profiles, furthest converted first
func (l *Logic) PeopleSorted() []models.Person {
	return PeopleSorted(l.StepsWithCount(), l.People())
}

// IsValidFunnel reports whether the last load produced anything to show
func (l *Logic) IsValidFunnel() bool {
	return IsValidFunnel(l.StepsWithCount(), l.TimeConversionBins())
}

// AreFiltersValid reports whether the filters describe at least two steps
func (l *Logic) AreFiltersValid() bool {
	return AreFiltersValid(l.Filters())
}

// IsStepsEmpty reports whether no step is selected
func (l *Logic) IsStepsEmpty() bool {
	return IsStepsEmpty(l.Filters())
}

// ShowBarGraph reports whether the display renders as a bar graph
func (l *Logic) ShowBarGraph() bool {
	return ShowBarGraph(l.Filters().Display)
}

// APIParams returns the request the next load would send
func (l *Logic) APIParams() models.RequestParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apiParamsLocked()
}

// PropertiesForURL returns the cleaned filters as they appear in the URL
func (l *Logic) PropertiesForURL() models.FilterState {
	return CleanParams(l.Filters())
}

// URL returns the path and query last written for this funnel, or "" for
// dashboard-owned logics and logics whose filters were never set.
func (l *Logic) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.urlValues == nil {
		return ""
	}
	return InsightsURL(l.urlValues)
}

func (l *Logic) apiParamsLocked() models.RequestParams {
	return BuildAPIParams(l.filters, ParamOptions{
		ConversionWindowDays: l.conversionWindowDays,
		BreakdownEnabled:     l.opts.ClickhouseFeatures,
		Refresh:              l.opts.Refresh,
	})
}

func (l *Logic) syncURLLocked() {
	if l.opts.DashboardItemID != "" {
		return
	}
	values, err := FiltersToQuery(CleanParams(l.filters))
	if err != nil {
		l.logger.Warn("cannot reflect filters in url", zap.Error(err))
		return
	}
	l.urlValues = values
}
