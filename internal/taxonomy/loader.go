package taxonomy

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/Patil2099/posthog/internal/models"
)

// Source lists the definitions groups are built from
type Source interface {
	PropertyDefinitions(ctx context.Context, kind models.PropertyDefinitionType, search string) ([]models.PropertyDefinition, error)
	EventDefinitions(ctx context.Context, search string) ([]models.EventDefinition, error)
	Cohorts(ctx context.Context) ([]models.Cohort, error)
}

var groupNames = map[GroupType]string{
	GroupEvents:           "Events",
	GroupEventProperties:  "Event properties",
	GroupPersonProperties: "Person properties",
	GroupCohorts:          "Cohorts",
}

// LoadGroups fetches the requested groups concurrently, in the given order.
// Search narrows the definitions on the server; cohorts are filtered
// locally by SetSearchQuery.
func LoadGroups(ctx context.Context, source Source, types []GroupType, search string) ([]Group, error) {
	if len(types) == 0 {
		types = DefaultGroupTypes
	}

	groups := make([]Group, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, groupType := range types {
		g.Go(func() error {
			items, err := loadItems(gctx, source, groupType, search)
			if err != nil {
				return fmt.Errorf("load %s: %w", groupType, err)
			}
			groups[i] = Group{Type: groupType, Name: groupNames[groupType], Items: items}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}

func loadItems(ctx context.Context, source Source, groupType GroupType, search string) ([]Item, error) {
	switch groupType {
	case GroupEvents:
		defs, err := source.EventDefinitions(ctx, search)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(defs))
		for _, def := range defs {
			items = append(items, Item{Value: def.Name, Name: def.Name})
		}
		return items, nil
	case GroupEventProperties, GroupPersonProperties:
		kind := models.PropertyDefinitionEvent
		if groupType == GroupPersonProperties {
			kind = models.PropertyDefinitionPerson
		}
		defs, err := source.PropertyDefinitions(ctx, kind, search)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(defs))
		for _, def := range defs {
			items = append(items, Item{Value: def.Name, Name: def.Name})
		}
		return items, nil
	case GroupCohorts:
		cohorts, err := source.Cohorts(ctx)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(cohorts))
		for _, cohort := range cohorts {
			items = append(items, Item{Value: strconv.Itoa(cohort.ID), Name: cohort.Name})
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unknown group type %q", groupType)
	}
}
