// Package config defines the application configuration, loaded from a YAML
// file with credentials resolved from environment variables and .env files.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Completion configures the model provider.
	Completion CompletionConfig `yaml:"completion"`

	// Slack configures the chat workspace transport.
	Slack SlackConfig `yaml:"slack"`

	// Session configures conversation memory.
	Session SessionConfig `yaml:"session"`

	// Router configures capability selection.
	Router RouterConfig `yaml:"router"`

	// Workflow configures the workflow recommendation executor.
	Workflow WorkflowConfig `yaml:"workflow"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// CompletionConfig configures the model provider.
type CompletionConfig struct {
	// Provider selects the backend ("openai" or "anthropic").
	Provider string `yaml:"provider"`

	// APIKey is the provider API key. Prefer OPENAI_API_KEY or
	// ANTHROPIC_API_KEY in the environment over a value here.
	APIKey string `yaml:"api_key"`

	// FastModel overrides the model used for cheap classification and
	// query-refinement calls. Empty uses the provider default.
	FastModel string `yaml:"fast_model"`

	// DeepModel overrides the model used for user-facing answers.
	DeepModel string `yaml:"deep_model"`

	// MaxAttempts is the retry budget per completion call.
	MaxAttempts int `yaml:"max_attempts"`
}

// SlackConfig configures the Slack transport.
type SlackConfig struct {
	// BotToken is the Bot User OAuth Token (xoxb-...). Resolved from
	// SLACK_BOT_TOKEN when empty.
	BotToken string `yaml:"bot_token"`

	// UserToken is a user OAuth token (xoxp-...) for workspace search.
	// Resolved from SLACK_USER_TOKEN when empty.
	UserToken string `yaml:"user_token"`

	// SigningSecret verifies Events API callbacks. Resolved from
	// SLACK_SIGNING_SECRET when empty.
	SigningSecret string `yaml:"signing_secret"`

	// ListenAddr is where the Events API endpoint listens.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means all channels.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// SessionConfig configures conversation memory.
type SessionConfig struct {
	// Window is the number of exchanges kept per conversation.
	Window int `yaml:"window"`

	// IdleTimeoutMinutes is how long an untouched conversation survives.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
}

// RouterConfig configures capability selection.
type RouterConfig struct {
	// UseClassifier enables model-assisted intent classification for turns
	// no explicit trigger phrase matches.
	UseClassifier bool `yaml:"use_classifier"`

	// ResetPhrases override the phrases that break capability stickiness.
	// Empty keeps the defaults.
	ResetPhrases []string `yaml:"reset_phrases"`
}

// WorkflowConfig configures the workflow recommendation executor.
type WorkflowConfig struct {
	// Categories override the workflow categories offered in
	// recommendations. Empty keeps the defaults.
	Categories []string `yaml:"categories"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Completion: CompletionConfig{
			Provider:    "openai",
			MaxAttempts: 3,
		},
		Slack: SlackConfig{
			ListenAddr: ":8080",
		},
		Session: SessionConfig{
			Window:             20,
			IdleTimeoutMinutes: 30,
		},
		Router: RouterConfig{
			UseClassifier: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML configuration file, overlaying it on the defaults.
// .env files are loaded first and secrets are resolved from the environment.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}
	if c.Completion.APIKey == "" {
		return fmt.Errorf("completion api key is not set (config or %s)", apiKeyEnv(c.Completion.Provider))
	}
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is not set (config or SLACK_BOT_TOKEN)")
	}
	if c.Session.Window <= 0 {
		return fmt.Errorf("session window must be positive, got %d", c.Session.Window)
	}
	if c.Session.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %d", c.Session.IdleTimeoutMinutes)
	}
	return nil
}

// loadEnvFiles loads .env files from standard locations.
// godotenv.Load does not overwrite variables already set.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// resolveSecrets fills empty credential fields from the environment.
func resolveSecrets(cfg *Config) {
	if cfg.Completion.APIKey == "" {
		cfg.Completion.APIKey = os.Getenv(apiKeyEnv(cfg.Completion.Provider))
	}
	if cfg.Slack.BotToken == "" {
		cfg.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if cfg.Slack.UserToken == "" {
		cfg.Slack.UserToken = os.Getenv("SLACK_USER_TOKEN")
	}
	if cfg.Slack.SigningSecret == "" {
		cfg.Slack.SigningSecret = os.Getenv("SLACK_SIGNING_SECRET")
	}
}

func apiKeyEnv(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
