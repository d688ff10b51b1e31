package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(telegramCmd)
	telegramCmd.AddCommand(setWebhookCmd, webhookInfoCmd)
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Manage the Telegram bot",
}

var setWebhookCmd = &cobra.Command{
	Use:   "set-webhook <url>",
	Short: "Point the bot's updates at <url> (e.g. https://host/telegram-webhook)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		messenger, err := newMessenger(cfg, nil)
		if err != nil {
			return err
		}
		if err := messenger.SetWebhook(args[0], cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Webhook for @%s set to %s\n", messenger.Username(), args[0])
		if cfg.Telegram.WebhookSecret == "" {
			fmt.Fprintln(os.Stdout, "Warning: no telegram.webhook_secret configured; updates are not authenticated.")
		}
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "webhook-info",
	Short: "Show the bot's current webhook registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		messenger, err := newMessenger(loadConfig(), nil)
		if err != nil {
			return err
		}
		info, err := messenger.WebhookInfo()
		if err != nil {
			return err
		}
		url := info.URL
		if url == "" {
			url = "(none)"
		}
		fmt.Fprintf(os.Stdout, "URL:             %s\n", url)
		fmt.Fprintf(os.Stdout, "Pending updates: %d\n", info.PendingUpdateCount)
		if info.LastErrorMessage != "" {
			fmt.Fprintf(os.Stdout, "Last error:      %s\n", info.LastErrorMessage)
		}
		return nil
	},
}
