package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Terminal modes.
const (
	ModeKit          = "kit"
	ModeSpeakerReady = "speaker-ready"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Board API
	MondayAPIURL         string        `envconfig:"MONDAY_API_URL" default:"https://api.monday.com/v2"`
	MondayAPIToken       string        `envconfig:"MONDAY_API_TOKEN"`
	MondayAPIVersion     string        `envconfig:"MONDAY_API_VERSION"`
	MondayRequestTimeout time.Duration `envconfig:"MONDAY_REQUEST_TIMEOUT" default:"30s"`
	MondayRetryAttempts  int           `envconfig:"MONDAY_RETRY_ATTEMPTS" default:"3"`

	// Sync
	KitSelection        string        `envconfig:"KIT_SELECTION"`
	TerminalMode        string        `envconfig:"TERMINAL_MODE" default:"kit"`
	PollingRateMinutes  int           `envconfig:"POLLING_RATE_MINUTES" default:"30"`
	DiscoveryInterval   time.Duration `envconfig:"DISCOVERY_INTERVAL" default:"10s"`
	CompletionThreshold float64       `envconfig:"COMPLETION_THRESHOLD" default:"35"`
	Timezone            string        `envconfig:"TIMEZONE" default:"Local"`

	// Storage
	CacheDir        string `envconfig:"CACHE_DIR"`
	VariablesDB     string `envconfig:"VARIABLES_DB"` // empty keeps variables in memory
	BoardLayoutPath string `envconfig:"BOARD_LAYOUT_PATH"`

	// Help requests
	HelpWebhookURL      string        `envconfig:"HELP_WEBHOOK_URL"`
	HelpSlackWebhookURL string        `envconfig:"HELP_SLACK_WEBHOOK_URL"`
	HelpGroup           string        `envconfig:"HELP_GROUP"`
	HelpCrew            string        `envconfig:"HELP_CREW"`
	HelpNotifyTimeout   time.Duration `envconfig:"HELP_NOTIFY_TIMEOUT" default:"10s"`

	// Control API
	ControlListenAddr     string `envconfig:"CONTROL_LISTEN_ADDR" default:":8090"`
	ControlAuthMode       string `envconfig:"CONTROL_AUTH_MODE" default:"api-key"`
	ControlAPIKey         string `envconfig:"CONTROL_API_KEY"`
	ControlOperatorKeys   string `envconfig:"CONTROL_OPERATOR_KEYS"` // comma-separated keys granted the operator role
	ControlJWTSecret      string `envconfig:"CONTROL_JWT_SECRET"`
	ControlRateLimitRPS   int    `envconfig:"CONTROL_RATE_LIMIT_RPS" default:"20"`
	ControlRateLimitBurst int    `envconfig:"CONTROL_RATE_LIMIT_BURST" default:"40"`
	ControlCORSOrigins    string `envconfig:"CONTROL_CORS_ORIGINS"`
}

// PollingInterval returns the sync interval.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingRateMinutes) * time.Minute
}

// Location resolves TIMEZONE. "Local" and empty use the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// HelpWebhookEnabled returns true if the JSON help webhook is configured.
func (c *Config) HelpWebhookEnabled() bool {
	return c.HelpWebhookURL != ""
}

// SlackHelpEnabled returns true if the Slack incoming webhook is configured.
func (c *Config) SlackHelpEnabled() bool {
	return c.HelpSlackWebhookURL != ""
}

// OperatorKeyList returns the parsed operator API keys.
func (c *Config) OperatorKeyList() []string {
	if c.ControlOperatorKeys == "" {
		return nil
	}
	parts := strings.Split(c.ControlOperatorKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, k := range parts {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks value ranges and cross-field requirements. The board API
// token is not required here; discovery reports it as missing at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.PollingRateMinutes < 1 || c.PollingRateMinutes > 360 {
		errs = append(errs, fmt.Errorf("POLLING_RATE_MINUTES must be within 1-360, got %d", c.PollingRateMinutes))
	}
	if c.CompletionThreshold < 0 || c.CompletionThreshold > 100 {
		errs = append(errs, fmt.Errorf("COMPLETION_THRESHOLD must be within 0-100, got %g", c.CompletionThreshold))
	}
	if c.DiscoveryInterval <= 0 {
		errs = append(errs, fmt.Errorf("DISCOVERY_INTERVAL must be positive, got %s", c.DiscoveryInterval))
	}
	switch strings.ToLower(c.TerminalMode) {
	case ModeKit, ModeSpeakerReady, "sr", "speaker_ready", "":
	default:
		errs = append(errs, fmt.Errorf("TERMINAL_MODE must be %q or %q, got %q", ModeKit, ModeSpeakerReady, c.TerminalMode))
	}
	switch c.ControlAuthMode {
	case "none":
	case "api-key":
		if c.ControlAPIKey == "" {
			errs = append(errs, errors.New("CONTROL_API_KEY is required when CONTROL_AUTH_MODE=api-key"))
		}
	case "jwt":
		if len(c.ControlJWTSecret) < 16 {
			errs = append(errs, errors.New("CONTROL_JWT_SECRET must be at least 16 bytes when CONTROL_AUTH_MODE=jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("CONTROL_AUTH_MODE must be api-key, jwt or none, got %q", c.ControlAuthMode))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
