package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SetupStatus contains information about the setup state
type SetupStatus struct {
	NeedsSetup bool   // Whether configure needs to run
	HasAPIKey  bool   // Whether a personal API key is available
	ConfigPath string // Where SaveConfig would write
	Reason     string // Human-readable reason for needing setup
}

// CheckSetupStatus reports whether enough configuration exists to talk to
// the analytics backend.
func CheckSetupStatus() (*SetupStatus, error) {
	status := &SetupStatus{ConfigPath: getConfigPath()}

	cfg, err := Load()
	if err != nil {
		status.NeedsSetup = true
		status.Reason = fmt.Sprintf("Invalid configuration: %v", err)
		return status, nil
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		status.NeedsSetup = true
		status.Reason = "No API key configured"
		return status, nil
	}

	status.HasAPIKey = true
	return status, nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(cfg *Config) (string, error) {
	configPath := getConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")

	if cfg.PostHogHost != "" {
		v.Set("posthog_host", cfg.PostHogHost)
	}
	if cfg.APIKey != "" {
		v.Set("api_key", cfg.APIKey)
	}
	if cfg.Port != "" {
		v.Set("port", cfg.Port)
	}
	if cfg.PollInterval > 0 {
		v.Set("poll_interval", cfg.PollInterval.String())
	}
	if cfg.PollTimeout > 0 {
		v.Set("poll_timeout", cfg.PollTimeout.String())
	}
	if cfg.ConversionWindowDays > 0 {
		v.Set("conversion_window_days", cfg.ConversionWindowDays)
	}
	if cfg.CacheTTL > 0 {
		v.Set("cache_ttl", cfg.CacheTTL.String())
	}
	if cfg.GatewayToken != "" {
		v.Set("gateway_token", cfg.GatewayToken)
	}
	v.Set("breakdown_enabled", cfg.BreakdownEnabled)

	if err := v.WriteConfigAs(configPath); err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}

	// the file holds the personal API key
	if err := os.Chmod(configPath, 0600); err != nil {
		return "", fmt.Errorf("failed to set config permissions: %w", err)
	}

	return configPath, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if _, err := os.Stat("funnel.toml"); err == nil {
		return "funnel.toml"
	}
	if dir := configDir(); dir != "" {
		return filepath.Join(dir, "funnel.toml")
	}
	return "funnel.toml"
}

// configDir returns the XDG directory holding funnel.toml
func configDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome == "" {
		return ""
	}
	return filepath.Join(configHome, "funnel")
}
