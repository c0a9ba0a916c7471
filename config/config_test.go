package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	path := writeConfig(t, `
session:
  window: 5
router:
  use_classifier: true
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Session.Window)
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMinutes, "unset fields keep defaults")
	assert.True(t, cfg.Router.UseClassifier)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ResolvesSecretsFromEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACK_USER_TOKEN", "xoxp-env")

	path := writeConfig(t, `
completion:
  provider: anthropic
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", cfg.Completion.APIKey)
	assert.Equal(t, "xoxb-env", cfg.Slack.BotToken)
	assert.Equal(t, "xoxp-env", cfg.Slack.UserToken)
}

func TestLoad_ConfigValueWinsOverEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")

	path := writeConfig(t, `
completion:
  api_key: sk-file
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.Completion.APIKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Completion.APIKey = "sk-test"
		cfg.Slack.BotToken = "xoxb-test"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "unknown provider",
			mutate:  func(cfg *Config) { cfg.Completion.Provider = "cohere" },
			wantErr: "unknown completion provider",
		},
		{
			name:    "missing api key",
			mutate:  func(cfg *Config) { cfg.Completion.APIKey = "" },
			wantErr: "api key is not set",
		},
		{
			name:    "missing bot token",
			mutate:  func(cfg *Config) { cfg.Slack.BotToken = "" },
			wantErr: "bot token is not set",
		},
		{
			name:    "zero window",
			mutate:  func(cfg *Config) { cfg.Session.Window = 0 },
			wantErr: "window must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
