package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/mlbot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("mlbot setup")
		fmt.Println("Press Enter to accept the value shown in brackets.")
		fmt.Println()

		cfg.MercadoLibre.ClientID = prompt(scanner, "Mercado Libre app ID", cfg.MercadoLibre.ClientID)
		cfg.MercadoLibre.ClientSecret = prompt(scanner, "Mercado Libre secret key", cfg.MercadoLibre.ClientSecret)
		cfg.MercadoLibre.RedirectURI = prompt(scanner, "Redirect URI (https://<host>/callback)", cfg.MercadoLibre.RedirectURI)

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token", cfg.Telegram.Token)
		chat := ""
		if cfg.Telegram.ChatID != 0 {
			chat = strconv.FormatInt(cfg.Telegram.ChatID, 10)
		}
		for {
			chat = prompt(scanner, "Operator chat ID", chat)
			if chat == "" {
				break
			}
			id, err := strconv.ParseInt(chat, 10, 64)
			if err == nil {
				cfg.Telegram.ChatID = id
				break
			}
			fmt.Println("Chat ID must be a number.")
			chat = ""
		}
		cfg.Telegram.WebhookSecret = prompt(scanner, "Telegram webhook secret (optional)", cfg.Telegram.WebhookSecret)

		cfg.HTTP.Listen = prompt(scanner, "Listen address", cfg.HTTP.Listen)
		cfg.Credentials.DSN = prompt(scanner, "Credential store DSN (empty for tokens.json)", cfg.Credentials.DSN)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Validate(); err != nil {
			fmt.Println("Still missing before `mlbot serve` can run:")
			fmt.Println(err)
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
