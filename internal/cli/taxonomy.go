package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Patil2099/posthog/internal/taxonomy"
)

var (
	taxonomyGroups []string
	taxonomyLimit  int
	taxonomyFormat string
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Browse events, properties and cohorts",
}

var taxonomySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search events, properties and cohorts",
	Long: `Search the project's definitions the way the property picker does.

Examples:
  funnel taxonomy search browser
  funnel taxonomy search --groups events,cohorts sign`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return runTaxonomySearch(query, taxonomyGroups, taxonomyLimit, taxonomyFormat)
	},
}

func runTaxonomySearch(query string, groupNames []string, limit int, format string) error {
	format, err := resolveFormat(format)
	if err != nil {
		return err
	}
	if limit < 1 || limit > 1000 {
		return fmt.Errorf("limit must be between 1 and 1000")
	}

	var types []taxonomy.GroupType
	for _, name := range groupNames {
		groupType := taxonomy.GroupType(strings.TrimSpace(name))
		if !groupType.Valid() {
			return fmt.Errorf("invalid group %q", name)
		}
		types = append(types, groupType)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	groups, err := taxonomy.LoadGroups(ctx, newClient(cfg), types, query)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	filter := taxonomy.New(groups, taxonomy.Props{})
	filter.SetSearchQuery(query)
	for i := range groups {
		items := filter.Results(groups[i].Type)
		groups[i].Items = items[:min(len(items), limit)]
	}

	switch format {
	case "json":
		return printJSON(groups)
	case "csv":
		w := csv.NewWriter(os.Stdout)
		_ = w.Write([]string{"group", "value", "name"})
		for _, group := range groups {
			for _, item := range group.Items {
				_ = w.Write([]string{string(group.Type), item.Value, item.Name})
			}
		}
		w.Flush()
		return w.Error()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tVALUE\tNAME")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----")
	for _, group := range groups {
		for _, item := range group.Items {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", group.Name, item.Value, item.Name)
		}
	}
	return w.Flush()
}

func init() {
	taxonomySearchCmd.Flags().StringSliceVarP(&taxonomyGroups, "groups", "g", nil, "Groups to search (events, event_properties, person_properties, cohorts)")
	taxonomySearchCmd.Flags().IntVarP(&taxonomyLimit, "limit", "l", 20, "Maximum results per group")
	taxonomySearchCmd.Flags().StringVarP(&taxonomyFormat, "format", "f", "", "Output format (table, json, csv)")

	taxonomyCmd.AddCommand(taxonomySearchCmd)
	RootCmd.AddCommand(taxonomyCmd)
}
