package main

import (
	"acbridge/config"
	"acbridge/internal/core"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okText   = color.New(color.FgGreen).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	badText  = color.New(color.FgRed).SprintFunc()
	keyText  = color.New(color.Bold).SprintFunc()
)

var (
	wipeConfirmed bool
	forceRefresh  bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and manage vendor tokens",
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored token status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.manager.Init(ctx); err != nil && !errors.Is(err, core.ErrNoAccessToken) {
				return err
			}
			printStatus(cmd.OutOrStdout(), a.manager.Status())
			return nil
		})
	},
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token now",
	Long: `Refreshes the access token and persists the result. The vendor rotates
the refresh token, so a running server must reload it: this only works with
the file store and watch_file enabled. Otherwise call POST /api/token/refresh
on the server, or pass --force when no server is running.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := checkOfflineRefresh(a.cfg.Tokens, forceRefresh); err != nil {
				return err
			}
			if err := a.manager.Init(ctx); err != nil {
				return err
			}
			if _, err := a.manager.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			cmd.Println(okText("Token refreshed."))
			printStatus(cmd.OutOrStdout(), a.manager.Status())
			return nil
		})
	},
}

var tokenWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete the stored tokens",
	Long: `Deletes the tokens from the configured store. The next start bootstraps
again from ELECTROLUX_TOKEN and ELECTROLUX_REFRESH_TOKEN.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !wipeConfirmed {
			return errors.New("refusing to wipe tokens without --yes")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.manager.Wipe(ctx); err != nil {
				return err
			}
			cmd.Println(warnText("Stored tokens wiped."))
			return nil
		})
	},
}

func init() {
	tokenWipeCmd.Flags().BoolVar(&wipeConfirmed, "yes", false, "confirm the wipe")
	tokenRefreshCmd.Flags().BoolVar(&forceRefresh, "force", false,
		"refresh even though a running server would not pick up the rotated refresh token")
	tokenCmd.AddCommand(tokenStatusCmd, tokenRefreshCmd, tokenWipeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// checkOfflineRefresh refuses a refresh from a second process when a running
// server could not reload the result and would keep a revoked refresh token.
func checkOfflineRefresh(tokens config.TokensConfig, force bool) error {
	if force || (tokens.Store == config.StoreFile && tokens.WatchFile) {
		return nil
	}
	return errors.New("a running server would keep the revoked refresh token: " +
		"use POST /api/token/refresh on the server, or --force if none is running")
}

// withApp wires the components for a one-shot command
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newCLILogger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return fn(ctx, a)
}

func printStatus(w io.Writer, s core.TokenStatus) {
	fmt.Fprintf(w, "%s %s\n", keyText("Access token: "), presence(s.HasAccessToken))
	fmt.Fprintf(w, "%s %s\n", keyText("Refresh token:"), presence(s.HasRefreshToken))
	fmt.Fprintf(w, "%s %s\n", keyText("State:        "), stateText(s.State))

	if s.ExpiryTime != nil && s.ExpiresInMinutes != nil {
		expiry := fmt.Sprintf("%s (%d min)", s.ExpiryTime.Local().Format(time.RFC1123), *s.ExpiresInMinutes)
		if s.IsExpired {
			expiry = badText(expiry + " expired")
		}
		fmt.Fprintf(w, "%s %s\n", keyText("Expires:      "), expiry)
	}
	if s.RefreshTokenExpiryTime != nil && s.RefreshTokenExpiresInMinutes != nil {
		expiry := fmt.Sprintf("%s (%d min)", s.RefreshTokenExpiryTime.Local().Format(time.RFC1123), *s.RefreshTokenExpiresInMinutes)
		if s.IsRefreshTokenExpired {
			expiry = badText(expiry + " expired")
		}
		fmt.Fprintf(w, "%s %s\n", keyText("Refresh exp.: "), expiry)
	}
	if s.LastUpdated != nil {
		fmt.Fprintf(w, "%s %s\n", keyText("Last updated: "), s.LastUpdated.Local().Format(time.RFC1123))
	}
}

func presence(ok bool) string {
	if ok {
		return okText("present")
	}
	return badText("missing")
}

func stateText(state core.TokenState) string {
	switch state {
	case core.TokenStateValid:
		return okText(string(state))
	case core.TokenStateExpired:
		return badText(string(state))
	default:
		return warnText(string(state))
	}
}
