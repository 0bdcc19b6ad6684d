package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/acbmarket/feedctl/internal/api"
	"github.com/acbmarket/feedctl/internal/feed"
	"github.com/acbmarket/feedctl/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve feed state and actions to a local presentation layer",
	Long: `Serve the local presentation bridge.

The bridge always has the markets and leaderboard tabs. --market adds the
comments, holders and activity tabs of one market; --user adds that user's
forecast history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		marketID, _ := cmd.Flags().GetString("market")
		userID, _ := cmd.Flags().GetString("user")
		return runServer(cmd.Context(), marketID, userID)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show feedctl status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().String("market", "", "market id whose panel tabs to serve")
	serveCmd.Flags().String("user", "", "user id whose forecast history to serve")
	rootCmd.AddCommand(statusCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "feedctl.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// serveTabs lists the bridge's tabs in display order.
func serveTabs(client *remote.Client, precision int, marketID, userID string) []feed.Tab {
	tabs := []feed.Tab{
		{ID: feed.TabID(remote.SourceMarkets), Source: remote.NewMarketsSource(client, precision)},
		{ID: feed.TabID(remote.SourceLeaderboard), Source: remote.NewLeaderboardSource(client), Filters: feed.NewFilters("", "all", "global")},
	}
	if marketID != "" {
		tabs = append(tabs,
			feed.Tab{ID: feed.TabID(remote.SourceComments), Source: remote.NewCommentsSource(client, marketID), Filters: feed.NewFilters("", "", "newest")},
			feed.Tab{ID: feed.TabID(remote.SourceHolders), Source: remote.NewHoldersSource(client, marketID)},
			feed.Tab{ID: feed.TabID(remote.SourceActivity), Source: remote.NewActivitySource(client, marketID)},
		)
	}
	if userID != "" {
		tabs = append(tabs, feed.Tab{ID: feed.TabID(remote.SourceForecasts), Source: remote.NewForecastsSource(client, userID), Filters: feed.NewFilters("", "all", "")})
	}
	return tabs
}

func runServer(ctx context.Context, marketID, userID string) error {
	fmt.Fprintf(os.Stderr, "feedctl version %s\n", version)

	a, err := newApp()
	if err != nil {
		return err
	}
	cfg := a.cfg

	token := cfg.Server.Token
	if token == "" {
		token = uuid.New().String()
		printWarning("server.token is not set; using a one-time token: %s", token)
	}

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	gate, closeStore, err := openGate(a)
	if err != nil {
		return err
	}
	defer closeStore()

	tabs := feed.NewOrchestrator(feed.OrchestratorOptions{
		PageSize:     cfg.Feed.PageSize,
		Logger:       a.logger,
		Context:      ctx,
		RefreshAfter: cfg.Feed.RefreshAfter,
	}, serveTabs(a.client, cfg.Derive.Precision, marketID, userID)...)
	defer tabs.Close()
	if err := tabs.SelectTab(feed.TabID(remote.SourceMarkets)); err != nil {
		return err
	}

	bridge := api.NewBridge(api.Deps{
		Tabs:           tabs,
		SearchTab:      feed.TabID(remote.SourceMarkets),
		SearchDebounce: cfg.Feed.SearchDebounce,
		Gate:           gate,
		Precision:      cfg.Derive.Precision,
		Token:          token,
		Logger:         a.logger,
	})
	defer bridge.Close()

	go feed.NewPoller(tabs, cfg.Feed.PollInterval, a.logger).Run(ctx)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: bridge,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("bridge listening", "addr", addr, "tabs", len(tabs.Tabs()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	a, err := newApp()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	cfg := a.cfg

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Bridge", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Bridge", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Bridge", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("API", "%s", cfg.API.BaseURL)
	if a.client.IsAuthenticated() {
		printStatus("Session", "token configured")
	} else {
		printStatus("Session", "anonymous")
	}

	if gate, closeStore, err := openGate(a); err == nil {
		v := gateView(gate)
		if v.Remaining != "" {
			printStatus("Verification", "%s (%s left)", v.State, v.Remaining)
		} else {
			printStatus("Verification", "%s", v.State)
		}
		closeStore()
	} else {
		printStatus("Verification", "unavailable: %v", err)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
