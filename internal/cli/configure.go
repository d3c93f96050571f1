package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Patil2099/posthog/internal/config"
)

type configureOptions struct {
	port         string
	window       int
	gatewayToken string
	check        bool
}

var configureOpts configureOptions

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write funnel.toml",
	Long: `Save the backend URL, API key and defaults to funnel.toml.

The file is written next to an existing ./funnel.toml, or under
$XDG_CONFIG_HOME/funnel/. When no API key is known and stdin is a terminal,
it is prompted for without echo.

Examples:
  funnel configure --host https://eu.posthog.com --api-key phx_...
  funnel configure --check`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigure(configureOpts)
	},
}

// Seams replaced by tests
var (
	stdinIsTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
	readSecret = func(prompt string) (string, error) {
		fmt.Print(prompt)
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return string(data), err
	}
)

func runConfigure(opts configureOptions) error {
	if opts.check {
		return runConfigureCheck()
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if opts.window != 0 {
		cfg.ConversionWindowDays = opts.window
	}
	if opts.gatewayToken != "" {
		cfg.GatewayToken = opts.gatewayToken
	}

	if strings.TrimSpace(cfg.APIKey) == "" && stdinIsTerminal() {
		key, err := readSecret("Personal API key: ")
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		cfg.APIKey = strings.TrimSpace(key)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := config.SaveConfig(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration saved to %s\n", path)
	if cfg.APIKey == "" {
		fmt.Println("Warning: no API key configured; set POSTHOG_API_KEY or run configure --api-key")
	}
	return nil
}

func runConfigureCheck() error {
	status, err := config.CheckSetupStatus()
	if err != nil {
		return err
	}
	if status.NeedsSetup {
		fmt.Printf("Setup required: %s\n", status.Reason)
		fmt.Printf("Run: funnel configure --api-key <key> (writes %s)\n", status.ConfigPath)
		return nil
	}
	fmt.Printf("Configuration OK (%s)\n", status.ConfigPath)
	return nil
}

func init() {
	configureCmd.Flags().StringVarP(&configureOpts.port, "port", "p", "", "Gateway port")
	configureCmd.Flags().IntVarP(&configureOpts.window, "window", "w", 0, "Default conversion window in days")
	configureCmd.Flags().StringVar(&configureOpts.gatewayToken, "gateway-token", "", "Bearer token required by the gateway")
	configureCmd.Flags().BoolVar(&configureOpts.check, "check", false, "Only report whether setup is complete")
	RootCmd.AddCommand(configureCmd)
}
