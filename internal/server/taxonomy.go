package server

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/Patil2099/posthog/internal/taxonomy"
)

// handleTaxonomy lists the picker groups matching ?search=, optionally
// narrowed to ?groups=events,cohorts
func (s *Server) handleTaxonomy(c fiber.Ctx) error {
	if s.opts.Taxonomy == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Taxonomy source not configured",
		})
	}

	var types []taxonomy.GroupType
	for _, name := range strings.Split(c.Query("groups"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		groupType := taxonomy.GroupType(name)
		if !groupType.Valid() {
			return badRequest(c, "Unknown group type: "+name)
		}
		types = append(types, groupType)
	}
	search := c.Query("search")

	groups, err := taxonomy.LoadGroups(c.Context(), s.opts.Taxonomy, types, search)
	if err != nil {
		return s.fail(c, err)
	}

	filter := taxonomy.New(groups, taxonomy.Props{})
	filter.SetSearchQuery(search)
	for i := range groups {
		groups[i].Items = filter.Results(groups[i].Type)
	}
	return c.JSON(fiber.Map{"groups": groups})
}
