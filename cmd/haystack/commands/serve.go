package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haystackbot/haystack"
	"github.com/haystackbot/haystack/config"
	"github.com/haystackbot/haystack/logging"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `haystack serve` command that starts the assistant.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant and process workspace events",
		Long: `Start Haystack as a long-running service: connect to the chat
workspace, listen for events and answer turns until interrupted.

Examples:
  haystack serve
  haystack serve --config ./config.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}

	app, err := haystack.New(cfg, func(o *haystack.Options) {
		o.Logger = logger
	})
	if err != nil {
		return fmt.Errorf("assembling application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("haystack starting", "provider", cfg.Completion.Provider, "addr", cfg.Slack.ListenAddr)
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("running assistant: %w", err)
	}
	logger.Info("haystack stopped")
	return nil
}

// loadConfigAndLogger resolves the config path and verbosity flags shared by
// the serve and check commands.
func loadConfigAndLogger(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewSlogLogger(level, cfg.Logging.Format, os.Stdout)
	return cfg, logger, nil
}
