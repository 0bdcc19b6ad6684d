package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/acbmarket/feedctl/internal/config"
	"github.com/acbmarket/feedctl/internal/market"
	"github.com/acbmarket/feedctl/internal/remote"
)

var (
	noColor      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "feedctl",
	Short:         "Browse and drive the forecasting platform's feeds",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(marketsCmd, marketCmd, commentCmd, leaderboardCmd, historyCmd)
	rootCmd.AddCommand(browseCmd, percentCmd, verifyCmd, serveCmd, configCmd)
}

// loadConfig is replaced in tests.
var loadConfig = config.Load

// app is what commands build from the configuration.
type app struct {
	cfg    config.Config
	client *remote.Client
	logger *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	client := remote.New(remote.Options{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
		Logger:  logger,
	})
	return &app{cfg: cfg, client: client, logger: logger}, nil
}

func (a *app) marketOptions(ctx context.Context) market.Options {
	return market.Options{
		PageSize:       a.cfg.Feed.PageSize,
		Precision:      a.cfg.Derive.Precision,
		Logger:         a.logger,
		Context:        ctx,
		SearchDebounce: a.cfg.Feed.SearchDebounce,
		RefreshAfter:   a.cfg.Feed.RefreshAfter,
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// waitTimeout bounds how long one-shot commands wait for a page.
const waitTimeout = 30 * time.Second
