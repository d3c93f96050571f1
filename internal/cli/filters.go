package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Patil2099/posthog/internal/models"
)

// filterFlags are the funnel definition flags shared by several commands
type filterFlags struct {
	file          string
	events        []string
	actions       []string
	dateFrom      string
	dateTo        string
	interval      string
	breakdown     string
	breakdownType string
	order         string
	timeToConvert bool
	testAccounts  bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.file, "filters", "", "YAML file with the funnel definition")
	flags.StringSliceVarP(&f.events, "events", "e", nil, "Event steps in order (e.g. $pageview,signup)")
	flags.StringSliceVar(&f.actions, "actions", nil, "Action ids appended as steps after the events")
	flags.StringVar(&f.dateFrom, "date-from", "", "Start of the date range (e.g. -14d)")
	flags.StringVar(&f.dateTo, "date-to", "", "End of the date range")
	flags.StringVar(&f.interval, "interval", "", "Interval (hour, day, week, month)")
	flags.StringVar(&f.breakdown, "breakdown", "", "Property to break the funnel down by")
	flags.StringVar(&f.breakdownType, "breakdown-type", "event", "Breakdown property type (event, person)")
	flags.StringVar(&f.order, "order", "", "Step order (strict, ordered, unordered)")
	flags.BoolVar(&f.timeToConvert, "time-to-convert", false, "Compute the time to convert histogram")
	flags.BoolVar(&f.testAccounts, "filter-test-accounts", false, "Exclude internal and test users")
}

// build assembles the filters from the YAML file, if any, then the flags
func (f *filterFlags) build() (models.FilterState, error) {
	var filters models.FilterState
	if f.file != "" {
		loaded, err := loadFiltersFile(f.file)
		if err != nil {
			return models.FilterState{}, err
		}
		filters = loaded
	}
	filters.Insight = models.InsightFunnels

	if len(f.events) > 0 || len(f.actions) > 0 {
		filters.Events, filters.Actions = stepEntities(f.events, f.actions)
	}
	if f.dateFrom != "" {
		filters.DateFrom = f.dateFrom
	}
	if f.dateTo != "" {
		filters.DateTo = f.dateTo
	}
	if f.interval != "" {
		filters.Interval = f.interval
	}
	if f.breakdown != "" {
		filters.Breakdown = f.breakdown
		filters.BreakdownType = f.breakdownType
	}
	if f.order != "" {
		order := models.FunnelOrderType(f.order)
		switch order {
		case models.FunnelOrderStrict, models.FunnelOrderOrdered, models.FunnelOrderUnordered:
			filters.FunnelOrderType = order
		default:
			return models.FilterState{}, fmt.Errorf("invalid order %q (use strict, ordered or unordered)", f.order)
		}
	}
	if f.timeToConvert {
		filters.Display = models.DisplayFunnelsTimeToConvert
	} else if filters.Display == "" {
		filters.Display = models.DisplayFunnelViz
	}
	if f.testAccounts {
		filters.FilterTestAccounts = true
	}
	return filters, nil
}

// stepEntities numbers events first, then actions
func stepEntities(events, actions []string) ([]models.Entity, []models.Entity) {
	var eventSteps, actionSteps []models.Entity
	order := 0
	for _, name := range events {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		eventSteps = append(eventSteps, models.Entity{ID: name, Name: name, Type: models.EntityTypeEvents, Order: order})
		order++
	}
	for _, raw := range actions {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var id any = raw
		if n, err := strconv.Atoi(raw); err == nil {
			id = n
		}
		actionSteps = append(actionSteps, models.Entity{ID: id, Type: models.EntityTypeActions, Order: order})
		order++
	}
	return eventSteps, actionSteps
}

// loadFiltersFile reads a funnel definition written in YAML
func loadFiltersFile(path string) (models.FilterState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.FilterState{}, fmt.Errorf("failed to read filters file: %w", err)
	}

	var filters models.FilterState
	if err := yaml.Unmarshal(data, &filters); err != nil {
		return models.FilterState{}, fmt.Errorf("failed to parse filters file %s: %w", path, err)
	}
	for i := range filters.Events {
		if filters.Events[i].Type == "" {
			filters.Events[i].Type = models.EntityTypeEvents
		}
	}
	for i := range filters.Actions {
		if filters.Actions[i].Type == "" {
			filters.Actions[i].Type = models.EntityTypeActions
		}
	}
	return filters, nil
}
