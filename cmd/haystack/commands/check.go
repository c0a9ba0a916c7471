package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/haystackbot/haystack/transport/slack"
	"github.com/spf13/cobra"
)

// newCheckCmd creates the `haystack check` command that validates the
// configuration and workspace credentials without starting the assistant.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and workspace credentials",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}
	fmt.Println("configuration: ok")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	transport := slack.New(slack.Config{
		BotToken:  cfg.Slack.BotToken,
		UserToken: cfg.Slack.UserToken,
	}, logger)
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("workspace credentials: %w", err)
	}
	fmt.Printf("workspace credentials: ok (bot user %s)\n", transport.BotUserID())

	if cfg.Slack.UserToken == "" {
		fmt.Println("search token: missing (search-summarize will report unavailability)")
	} else {
		fmt.Println("search token: present")
	}
	return nil
}
