package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/mlbot/internal/types"
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authURLCmd, authStatusCmd, authRefreshCmd, authExchangeCmd)
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Mercado Libre authorization",
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the authorization link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, store, err := openAuth(loadConfig(), nil)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintln(os.Stdout, manager.AuthCodeURL())
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential without refreshing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, store, err := openAuth(loadConfig(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		cred, err := manager.Current(cmd.Context())
		if errors.Is(err, types.ErrAuthRequired) {
			fmt.Fprintln(os.Stdout, "Not linked. Run `mlbot auth url` and open the link.")
			return nil
		}
		if err != nil {
			return err
		}
		printCredential(cred)
		return nil
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg).Close()
		manager, store, err := openAuth(cfg, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout())
		defer cancel()
		cred, err := manager.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Token refreshed.")
		printCredential(cred)
		return nil
	},
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange <code>",
	Short: "Exchange an authorization code copied from the callback URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg).Close()
		manager, store, err := openAuth(cfg, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		cred, err := manager.Authorize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Account linked.")
		printCredential(cred)
		return nil
	},
}

func printCredential(cred *types.Credential) {
	state := "valid"
	if !cred.ValidAt(time.Now(), 0) {
		state = "expired (refreshed on next use)"
	}
	fmt.Fprintf(os.Stdout, "Account:    %s\n", cred.AccountID)
	fmt.Fprintf(os.Stdout, "Expires at: %s (%s)\n", cred.ExpiresAt.Local().Format(time.RFC1123), state)
}
