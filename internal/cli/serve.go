package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/alerts"
	"github.com/relayguard/relayguard/internal/api"
	"github.com/relayguard/relayguard/internal/cleanup"
	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/logging"
	"github.com/relayguard/relayguard/internal/metrics"
	"github.com/relayguard/relayguard/internal/oauth"
	"github.com/relayguard/relayguard/internal/provider"
	"github.com/relayguard/relayguard/internal/proxy"
	"github.com/relayguard/relayguard/internal/selector"
	"github.com/relayguard/relayguard/internal/store"
	"github.com/relayguard/relayguard/internal/telegram"
	"github.com/relayguard/relayguard/internal/token"
	"github.com/relayguard/relayguard/internal/upstream"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the RelayGuard proxy server",
	Long: `Start the RelayGuard server.

The server proxies inbound API traffic through the configured account
pool, rotating credentials and failing over on rate limits.

Example:
  relayguard serve --config config.yaml --db ./data/relayguard.db`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("RELAYGUARD_SHUTDOWN_TIMEOUT", config.DefaultShutdownTimeout), "Shutdown timeout")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting RelayGuard server...")
		log.Printf("Config path: %s", globalFlags.Config)
		log.Printf("Database path: %s", globalFlags.DBPath)
	}

	// Load configuration
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}

	logger := logging.NewLogger(logging.WithLevel(logLevel(cfg)))

	// Create SQLite store with WAL mode enabled
	sqliteStore, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}

	if err := seedAccountsFromConfig(sqliteStore, cfg); err != nil {
		return fmt.Errorf("failed to seed accounts from config: %w", err)
	}

	m := metrics.NewMetrics("relayguard")

	// Alert delivery is optional; the dispatcher runs fine without it.
	var alertSvc *alerts.Service
	if cfg.Telegram.Enabled {
		notifier, err := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("Telegram setup warning: %v", err)
		} else {
			opts := []alerts.Option{alerts.WithLogger(logger)}
			if cfg.Telegram.Throttle > 0 {
				opts = append(opts, alerts.WithDedupWindow(cfg.Telegram.Throttle))
			}
			alertSvc = alerts.NewService(notifier, opts...)
		}
	}

	oauthClient := oauth.NewClient()
	tokenMgr := token.NewManager(sqliteStore, oauthClient, cfg.OAuth, token.WithLogger(logger))

	prov, err := provider.New(cfg.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid upstream base URL: %w", err)
	}

	upstreamClient := upstream.NewClient(cfg.Upstream, upstream.WithLogger(logger))

	dispatcher := proxy.NewDispatcher(
		sqliteStore,
		selector.New(sqliteStore),
		tokenMgr,
		prov,
		upstreamClient,
		proxy.WithLogger(logger),
		proxy.WithRecorder(&dispatchObserver{metrics: m, alerts: alertSvc}),
		proxy.WithRateLimitCooldown(cfg.Upstream.RateLimitCooldown),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sweeper := cleanup.NewSweeper(sqliteStore, cfg.Session.SweepInterval,
		cleanup.WithLogger(logger), cleanup.WithMetrics(m))
	if err := sweeper.Start(rootCtx); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}

	// Hot-reload the config file; changed account seeds apply on restart.
	loader.SetOnChange(func(newCfg *config.Config) {
		logger.Info("configuration reloaded", "path", loader.Path())
	})
	go func() {
		if err := loader.Watch(rootCtx, logger); err != nil {
			logger.Warn("config watch unavailable", "error", err.Error())
		}
	}()

	server := api.NewServer(cfg, sqliteStore, dispatcher, oauthClient,
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithSweeper(sweeper),
	)

	setupGracefulShutdown(server, rootCancel, serveFlags.Timeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	log.Printf("Starting RelayGuard HTTP server on %s", addr)
	log.Printf("Database: %s (WAL mode enabled)", globalFlags.DBPath)
	if alertSvc != nil {
		log.Printf("Telegram alerts enabled (chat %d)", cfg.Telegram.ChatID)
	}

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, cancel context.CancelFunc, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)

		ctx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
		cancel()

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func logLevel(cfg *config.Config) logging.LogLevel {
	switch cfg.Server.LogLevel {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
