package server

import (
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/models"
)

// funnelView is the state and derived values of one funnel
type funnelView struct {
	Key                      string                       `json:"key"`
	Filters                  models.FilterState           `json:"filters"`
	Loading                  bool                         `json:"loading"`
	Error                    string                       `json:"error,omitempty"`
	LastRefresh              *time.Time                   `json:"last_refresh"`
	Steps                    []models.FunnelStep          `json:"steps"`
	StepsWithNestedBreakdown []models.FunnelStep          `json:"steps_with_nested_breakdown"`
	ConversionMetrics        models.ConversionMetrics     `json:"conversion_metrics"`
	Histogram                []models.HistogramBar        `json:"histogram"`
	HistogramSteps           []models.HistogramStepOption `json:"histogram_steps"`
	HistogramStep            models.HistogramStep         `json:"histogram_step"`
	StepReference            funnel.StepReference         `json:"step_reference"`
	ConversionWindowDays     int                          `json:"conversion_window_days"`
	IsValidFunnel            bool                         `json:"is_valid_funnel"`
	AreFiltersValid          bool                         `json:"are_filters_valid"`
	IsStepsEmpty             bool                         `json:"is_steps_empty"`
	ShowBarGraph             bool                         `json:"show_bar_graph"`
	URL                      string                       `json:"url,omitempty"`
}

type personView struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
}

func (s *Server) view(logic *funnel.Logic) funnelView {
	nested, err := logic.StepsWithNestedBreakdown()
	if err != nil {
		s.logger.Warn("cannot aggregate breakdown", zap.String("funnel", logic.Key()), zap.Error(err))
		nested = []models.FunnelStep{}
	}

	v := funnelView{
		Key:                      logic.Key(),
		Filters:                  logic.Filters(),
		Loading:                  logic.IsLoading(),
		LastRefresh:              logic.RawResults().LastRefresh,
		Steps:                    logic.StepsWithCount(),
		StepsWithNestedBreakdown: nested,
		ConversionMetrics:        logic.ConversionMetrics(),
		Histogram:                logic.HistogramGraphData(),
		HistogramSteps:           logic.HistogramStepsDropdown(),
		HistogramStep:            logic.HistogramStep(),
		StepReference:            logic.StepReference(),
		ConversionWindowDays:     logic.ConversionWindowDays(),
		IsValidFunnel:            logic.IsValidFunnel(),
		AreFiltersValid:          logic.AreFiltersValid(),
		IsStepsEmpty:             logic.IsStepsEmpty(),
		ShowBarGraph:             logic.ShowBarGraph(),
		URL:                      logic.URL(),
	}
	if err := logic.LastError(); err != nil {
		v.Error = err.Error()
	}
	return v
}

func (s *Server) lookup(c fiber.Ctx) (*funnel.Logic, bool) {
	return s.registry.Get(c.Params("key"))
}

func (s *Server) handleList(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"keys": s.registry.Keys()})
}

type mountRequest struct {
	Filters *models.FilterState `json:"filters"`
	Refresh bool                `json:"refresh"`
}

func (s *Server) handleMount(c fiber.Ctx) error {
	var req mountRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	logic, created, err := s.registry.Mount(c.Params("key"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	if req.Filters != nil {
		if err := logic.SetFilters(c.Context(), *req.Filters, req.Refresh, false); err != nil {
			return s.fail(c, err)
		}
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(s.view(logic))
}

func (s *Server) handleView(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}
	return c.JSON(s.view(logic))
}

func (s *Server) handleUnmount(c fiber.Ctx) error {
	if !s.registry.Unmount(c.Params("key")) {
		return notMounted(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetFilters(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	var filters models.FilterState
	if err := c.Bind().Body(&filters); err != nil {
		return badRequest(c, "Invalid filters")
	}
	refresh := fiber.Query[bool](c, "refresh")
	merge := fiber.Query[bool](c, "merge")

	if err := logic.SetFilters(c.Context(), filters, refresh, merge); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.view(logic))
}

func (s *Server) handleLoad(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	if _, err := logic.LoadResults(c.Context(), fiber.Query[bool](c, "refresh")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.view(logic))
}

func (s *Server) handleClear(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}
	logic.ClearFunnel()
	return c.JSON(s.view(logic))
}

type conversionWindowRequest struct {
	Days float64 `json:"days"`
}

// handleConversionWindow sets the window; with ?load=true the change is
// debounced and followed by a reload.
func (s *Server) handleConversionWindow(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	var req conversionWindowRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Days < 1 || req.Days > 365 {
		return badRequest(c, "Conversion window must be between 1 and 365 days")
	}

	if !fiber.Query[bool](c, "load") {
		logic.SetConversionWindowDays(req.Days)
		return c.JSON(s.view(logic))
	}
	if err := logic.LoadConversionWindow(c.Context(), req.Days); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.view(logic))
}

type stepReferenceRequest struct {
	Reference funnel.StepReference `json:"reference"`
}

func (s *Server) handleStepReference(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	var req stepReferenceRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := logic.SetStepReference(req.Reference); err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(s.view(logic))
}

func (s *Server) handleHistogramStep(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	var step models.HistogramStep
	if err := c.Bind().Body(&step); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := logic.ChangeHistogramStep(c.Context(), step.FromStep, step.ToStep); err != nil && !errors.Is(err, funnel.ErrInvalidFilters) {
		return s.fail(c, err)
	}
	return c.JSON(s.view(logic))
}

func peopleView(people []models.Person) []personView {
	out := make([]personView, 0, len(people))
	for _, p := range people {
		out = append(out, personView{UUID: p.UUID, DisplayName: p.DisplayName()})
	}
	return out
}

func (s *Server) handlePeople(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}
	return c.JSON(peopleView(logic.PeopleSorted()))
}

func (s *Server) handleLoadPeople(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}
	if _, err := logic.LoadPeople(c.Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(peopleView(logic.PeopleSorted()))
}

type saveInsightRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveInsight(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	var req saveInsightRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Name == "" {
		return badRequest(c, "Insight name is required")
	}

	insight, err := logic.SaveInsight(c.Context(), req.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(insight)
}

func (s *Server) handleURL(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}
	return c.JSON(fiber.Map{
		"url":        logic.URL(),
		"properties": logic.PropertiesForURL(),
	})
}

// handleApplyURL feeds the request's own query string to the funnel as if
// the browser had navigated to it.
func (s *Server) handleApplyURL(c fiber.Ctx) error {
	logic, ok := s.lookup(c)
	if !ok {
		return notMounted(c)
	}

	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return badRequest(c, "Invalid query string")
	}

	changed, err := logic.ApplyURL(c.Context(), values, s.eventNames(c))
	if err != nil {
		if statusFor(err) == fiber.StatusInternalServerError {
			return badRequest(c, err.Error())
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"changed": changed,
		"funnel":  s.view(logic),
	})
}

func (s *Server) eventNames(c fiber.Ctx) []string {
	if s.opts.Taxonomy == nil {
		return nil
	}
	defs, err := s.opts.Taxonomy.EventDefinitions(c.Context(), "")
	if err != nil {
		s.logger.Warn("cannot list event definitions", zap.Error(err))
		return nil
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}
