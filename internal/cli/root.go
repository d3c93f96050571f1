// Package cli implements the funnel command line.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Patil2099/posthog/internal/api"
	"github.com/Patil2099/posthog/internal/config"
	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
	"github.com/Patil2099/posthog/internal/taxonomy"
)

const commandTimeout = 5 * time.Minute

// Persistent flags
var (
	flagHost     string
	flagAPIKey   string
	flagLogLevel string
)

// RootCmd is the top level funnel command
var RootCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Compute and explore product funnels",
	Long: `funnel computes conversion funnels against a PostHog compatible
analytics backend, from the terminal or through an HTTP gateway.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagLogLevel != "" {
			logging.SetLevel(flagLogLevel)
		}
	},
}

// backendClient is everything the commands need from the analytics backend
type backendClient interface {
	funnel.Backend
	taxonomy.Source
}

// Seams replaced by tests
var (
	loadConfig = func() (*config.Config, error) {
		return config.LoadWithOverrides(config.Overrides{
			PostHogHost: flagHost,
			APIKey:      flagAPIKey,
		})
	}
	newClient = func(cfg *config.Config) backendClient {
		return api.NewClient(cfg.PostHogHost, cfg.APIKey,
			api.WithTimeout(cfg.PollTimeout),
			api.WithLogger(logging.Named("api")))
	}
	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
)

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// funnelOptions wires a logic to the backend the way cfg describes
func funnelOptions(cfg *config.Config, client funnel.Backend, cache *funnel.ResultCache) funnel.Options {
	return funnel.Options{
		Backend:            client,
		Logger:             logging.Named("funnel"),
		Reporter:           funnel.NewLogReporter(logging.Named("analytics")),
		Cache:              cache,
		PollInterval:       cfg.PollInterval,
		PollTimeout:        cfg.PollTimeout,
		ClickhouseFeatures: cfg.BreakdownEnabled,
	}
}

func newResultCache(cfg *config.Config) *funnel.ResultCache {
	if cfg.CacheTTL <= 0 {
		return nil
	}
	return funnel.NewResultCache(cfg.CacheTTL)
}

// newFunnelLogic builds a standalone logic for one command invocation
func newFunnelLogic(cfg *config.Config, client funnel.Backend, filters models.FilterState) *funnel.Logic {
	opts := funnelOptions(cfg, client, newResultCache(cfg))
	opts.Filters = filters
	return funnel.NewLogic("cli", opts)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Analytics backend URL (overrides config and POSTHOG_HOST)")
	RootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Personal API key (overrides config and POSTHOG_API_KEY)")
	RootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
