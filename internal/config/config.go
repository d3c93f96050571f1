package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPostHogHost          = "http://localhost:8000"
	DefaultPort                 = "3000"
	DefaultPollInterval         = time.Second
	DefaultPollTimeout          = 180 * time.Second
	DefaultConversionWindowDays = 14
	DefaultCacheTTL             = 60 * time.Second
)

// Config holds application configuration
type Config struct {
	PostHogHost          string
	APIKey               string
	Port                 string
	PollInterval         time.Duration
	PollTimeout          time.Duration
	ConversionWindowDays int
	BreakdownEnabled     bool
	CacheTTL             time.Duration
	// GatewayToken protects the HTTP gateway when set
	GatewayToken string
}

// Overrides are command line values that take precedence over every other
// source. Empty fields are ignored.
type Overrides struct {
	PostHogHost string
	APIKey      string
	Port        string
}

// config keys and the environment variables consulted when the file does not
// set them
var envKeys = []struct {
	key string
	env string
}{
	{"posthog_host", "POSTHOG_HOST"},
	{"api_key", "POSTHOG_API_KEY"},
	{"port", "PORT"},
	{"poll_interval", "FUNNEL_POLL_INTERVAL"},
	{"poll_timeout", "FUNNEL_POLL_TIMEOUT"},
	{"conversion_window_days", "FUNNEL_CONVERSION_WINDOW_DAYS"},
	{"breakdown_enabled", "FUNNEL_BREAKDOWN_ENABLED"},
	{"cache_ttl", "FUNNEL_CACHE_TTL"},
	{"gateway_token", "FUNNEL_GATEWAY_TOKEN"},
}

// Load reads configuration from funnel.toml, the environment and defaults
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides loads configuration with priority
// flags > config file > environment > defaults.
func LoadWithOverrides(overrides Overrides) (*Config, error) {
	v := newBaseViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, ek := range envKeys {
		if v.InConfig(ek.key) {
			continue
		}
		if value, ok := os.LookupEnv(ek.env); ok && value != "" {
			v.Set(ek.key, value)
		}
	}

	if overrides.PostHogHost != "" {
		v.Set("posthog_host", overrides.PostHogHost)
	}
	if overrides.APIKey != "" {
		v.Set("api_key", overrides.APIKey)
	}
	if overrides.Port != "" {
		v.Set("port", overrides.Port)
	}

	cfg := &Config{
		PostHogHost:          strings.TrimRight(v.GetString("posthog_host"), "/"),
		APIKey:               v.GetString("api_key"),
		Port:                 v.GetString("port"),
		PollInterval:         v.GetDuration("poll_interval"),
		PollTimeout:          v.GetDuration("poll_timeout"),
		ConversionWindowDays: v.GetInt("conversion_window_days"),
		BreakdownEnabled:     v.GetBool("breakdown_enabled"),
		CacheTTL:             v.GetDuration("cache_ttl"),
		GatewayToken:         v.GetString("gateway_token"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the funnel client misbehave
func (c *Config) Validate() error {
	u, err := url.Parse(c.PostHogHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid posthog_host %q", c.PostHogHost)
	}
	if c.ConversionWindowDays < 1 || c.ConversionWindowDays > 365 {
		return fmt.Errorf("conversion_window_days must be between 1 and 365, got %d", c.ConversionWindowDays)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("poll_timeout %s is shorter than poll_interval %s", c.PollTimeout, c.PollInterval)
	}
	return nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("funnel")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if dir := configDir(); dir != "" {
		v.AddConfigPath(dir)
	}

	v.SetDefault("posthog_host", DefaultPostHogHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("poll_timeout", DefaultPollTimeout)
	v.SetDefault("conversion_window_days", DefaultConversionWindowDays)
	v.SetDefault("breakdown_enabled", true)
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	return v
}
