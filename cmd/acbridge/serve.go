package main

import (
	"acbridge/config"
	"acbridge/internal/api"
	"acbridge/internal/api/middleware"
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"acbridge/internal/scheduler"
	"acbridge/internal/storage"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var allowUninitialized bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	Long: `Starts the dashboard API, the scheduled token refresh and, for the file
store, a watcher that reloads tokens edited by hand.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&allowUninitialized, "allow-uninitialized", false,
		"start without an access token and wait for PUT /api/token")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Server.CheckTokenRoutes(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.manager.Init(ctx); err != nil {
		if !errors.Is(err, core.ErrNoAccessToken) || !allowUninitialized {
			return fmt.Errorf("failed to initialize tokens: %w", err)
		}
		logger.Warn("No access token configured; API will answer 503 until tokens are installed")
	}

	// Start scheduler
	sched := scheduler.NewScheduler(a.manager, cfg.Tokens.RefreshInterval, cfg.Tokens.RateLimitBackoff, clock.Real{}, logger)
	go sched.Start()
	defer sched.Stop()

	if fileStore := storage.FileStore(a.store); fileStore != nil && cfg.Tokens.WatchFile {
		if err := fileStore.Watch(ctx, logger, a.manager.Reload); err != nil {
			logger.Warn("Token file watcher disabled", "error", err)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Appliances: a.service,
		Tokens:     a.manager,
		StaticDir:  cfg.Server.StaticDir,
		TokenRateLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.TokenRateLimit,
			Window:            time.Minute,
		},
		OperatorKey: operatorKey(cfg.Server),
		Logger:      logger,
	})

	server := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Confirmed control requests poll the appliance for up to 20s per step.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			"addr", server.Addr,
			"health", fmt.Sprintf("http://localhost:%d/api/health", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown")

		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}

// operatorKey is empty when the credential mutation routes are disabled
func operatorKey(s config.ServerConfig) string {
	if !s.TokenRoutes {
		return ""
	}
	return s.OperatorKey
}
