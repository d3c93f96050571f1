package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/models"
)

// Command flags
var (
	calcFilters   filterFlags
	calcWindow    int
	calcReference string
	calcRefresh   bool
	calcFormat    string

	peopleFilters filterFlags
	peopleFormat  string

	saveFilters filterFlags

	urlFilters filterFlags

	openURLFormat string
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Compute a funnel",
	Long: `Compute a funnel and print its steps and conversion rates.

Examples:
  funnel calculate --events '$pageview,signup,purchase' --date-from -30d
  funnel calculate --filters signup.yaml --breakdown '$geoip_country_code'
  funnel calculate --filters signup.yaml --time-to-convert --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalculate(calculateOptions{
			filters:   calcFilters,
			window:    calcWindow,
			reference: calcReference,
			refresh:   calcRefresh,
			format:    calcFormat,
		})
	},
}

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List the people who entered a funnel",
	Long: `Compute a funnel and list the people of its first step, those who
converted furthest first.

Examples:
  funnel people --events '$pageview,signup'
  funnel people --filters signup.yaml --format csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeople(peopleFilters, peopleFormat)
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a funnel as an insight",
	Long: `Save the funnel definition as a named insight.

Examples:
  funnel save "Signup funnel" --events '$pageview,signup'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSave(args[0], saveFilters)
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the insights URL for a funnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runURL(urlFilters)
	},
}

var openURLCmd = &cobra.Command{
	Use:   "open-url <insights-url>",
	Short: "Compute the funnel described by an insights URL",
	Long: `Compute the funnel encoded in the query string of an insights URL.
Funnels without steps start from $pageview, or the first known event.

Examples:
  funnel open-url 'https://app.example.com/insights?insight=FUNNELS&events=...'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOpenURL(args[0], openURLFormat)
	},
}

type calculateOptions struct {
	filters   filterFlags
	window    int
	reference string
	refresh   bool
	format    string
}

func runCalculate(opts calculateOptions) error {
	format, err := resolveFormat(opts.format)
	if err != nil {
		return err
	}
	filters, err := opts.filters.build()
	if err != nil {
		return err
	}
	if !funnel.AreFiltersValid(filters) {
		return fmt.Errorf("a funnel needs at least two steps, got %d", filters.StepCount())
	}
	reference := funnel.StepReference(opts.reference)
	if !reference.Valid() {
		return fmt.Errorf("invalid reference %q (use total or previous)", opts.reference)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	window := opts.window
	if window == 0 {
		window = cfg.ConversionWindowDays
	}
	if window < 1 || window > 365 {
		return fmt.Errorf("window must be between 1 and 365 days")
	}

	ctx, cancel := commandContext()
	defer cancel()

	logic := newFunnelLogic(cfg, newClient(cfg), filters)
	defer logic.Close()
	logic.SetConversionWindowDays(float64(window))
	if err := logic.SetStepReference(reference); err != nil {
		return err
	}
	if _, err := logic.LoadResults(ctx, opts.refresh); err != nil {
		return fmt.Errorf("failed to calculate funnel: %w", err)
	}

	return printReport(buildReport(logic), format)
}

func runPeople(flags filterFlags, format string) error {
	format, err := resolveFormat(format)
	if err != nil {
		return err
	}
	filters, err := flags.build()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	logic := newFunnelLogic(cfg, newClient(cfg), filters)
	defer logic.Close()
	if _, err := logic.LoadResults(ctx, false); err != nil {
		return fmt.Errorf("failed to calculate funnel: %w", err)
	}
	if logic.People() == nil {
		if _, err := logic.LoadPeople(ctx); err != nil {
			return fmt.Errorf("failed to load people: %w", err)
		}
	}

	return printPeople(logic.PeopleSorted(), format)
}

func runSave(name string, flags filterFlags) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("insight name is required")
	}
	filters, err := flags.build()
	if err != nil {
		return err
	}
	if err := validateFilters(filters); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	logic := newFunnelLogic(cfg, newClient(cfg), filters)
	defer logic.Close()
	insight, err := logic.SaveInsight(ctx, name)
	if err != nil {
		return err
	}

	fmt.Println("Insight saved successfully!")
	fmt.Printf("ID:   %d\n", insight.ID)
	fmt.Printf("Name: %s\n", insight.Name)
	if insight.ShortID != "" {
		fmt.Printf("URL:  %s/insights/%s\n", cfg.PostHogHost, insight.ShortID)
	}
	return nil
}

func runURL(flags filterFlags) error {
	filters, err := flags.build()
	if err != nil {
		return err
	}
	if err := validateFilters(filters); err != nil {
		return err
	}
	values, err := funnel.FiltersToQuery(funnel.CleanParams(filters))
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}

	host := ""
	if cfg, err := loadConfig(); err == nil {
		host = cfg.PostHogHost
	}
	fmt.Println(host + funnel.InsightsURL(values))
	return nil
}

func runOpenURL(rawURL, format string) error {
	format, err := resolveFormat(format)
	if err != nil {
		return err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	client := newClient(cfg)
	logic := newFunnelLogic(cfg, client, models.FilterState{})
	defer logic.Close()

	changed, err := logic.ApplyURL(ctx, parsed.Query(), knownEvents(ctx, client))
	if err != nil {
		return fmt.Errorf("failed to open url: %w", err)
	}
	if !changed {
		return fmt.Errorf("url does not describe a funnel")
	}
	if !logic.AreFiltersValid() {
		return fmt.Errorf("a funnel needs at least two steps, got %d", logic.Filters().StepCount())
	}
	return printReport(buildReport(logic), format)
}

// knownEvents lists event names; failures leave the default event to $pageview
func knownEvents(ctx context.Context, client backendClient) []string {
	defs, err := client.EventDefinitions(ctx, "")
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Printf("Warning: could not list events: %v\n", err)
		}
		return nil
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

// validateFilters is shared by commands that only store filters
func validateFilters(filters models.FilterState) error {
	if filters.StepCount() == 0 {
		return fmt.Errorf("at least one step is required (use --events, --actions or --filters)")
	}
	return nil
}

func init() {
	calcFilters.register(calculateCmd)
	calculateCmd.Flags().IntVarP(&calcWindow, "window", "w", 0, "Conversion window in days (default from config)")
	calculateCmd.Flags().StringVar(&calcReference, "reference", string(funnel.StepReferenceTotal), "Conversion reference (total, previous)")
	calculateCmd.Flags().BoolVar(&calcRefresh, "refresh", false, "Force the backend to recompute")
	calculateCmd.Flags().StringVarP(&calcFormat, "format", "f", "", "Output format (table, json, csv)")

	peopleFilters.register(peopleCmd)
	peopleCmd.Flags().StringVarP(&peopleFormat, "format", "f", "", "Output format (table, json, csv)")

	saveFilters.register(saveCmd)
	urlFilters.register(urlCmd)
	openURLCmd.Flags().StringVarP(&openURLFormat, "format", "f", "", "Output format (table, json, csv)")

	RootCmd.AddCommand(calculateCmd)
	RootCmd.AddCommand(peopleCmd)
	RootCmd.AddCommand(saveCmd)
	RootCmd.AddCommand(urlCmd)
	RootCmd.AddCommand(openURLCmd)
}
