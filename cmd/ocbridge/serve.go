package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/ocbridge/internal/api"
	"github.com/nsvirk/ocbridge/internal/api/middleware"
	"github.com/nsvirk/ocbridge/internal/config"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with its scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg, opts.dryRun)
		},
	}
}

func serve(cfg *config.Config, dryRun bool) error {
	// Print the configuration
	zaplogger.Info(cfg.String())

	a, err := newApp(cfg, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	// startUpMessage
	zaplogger.Info(cfg.APIName + " - " + cfg.APIVersion + " initialized")

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Setup middleware
	middleware.SetupLoggerMiddleware(e)

	// Setup cron jobs
	cronService := service.NewCronService(a.bridge, a.sessions, cfg.Location())

	// Setup routes
	api.SetupRoutes(e, cfg, a.bridge, a.fetchLogs, cronService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start cron jobs
	cronService.Start()
	defer cronService.Stop()

	// Watch the workbook file so edits reload the dropdowns
	if cfg.WorkbookBackend == "file" && !dryRun {
		watcher := service.NewWatchService(cfg.WorkbookPath, func() {
			reloadCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := a.bridge.InvalidateDropdowns(reloadCtx); err != nil {
				zaplogger.Warn("dropdown reload failed", zaplogger.Fields{"error": err.Error()})
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				zaplogger.Error("workbook watcher stopped", zaplogger.Fields{"error": err.Error()})
			}
		}()
	}

	// Start the server
	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(e, cfg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zaplogger.Info("SERVER SHUTTING DOWN")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// startServer starts the Echo server on the specified port
func startServer(e *echo.Echo, cfg *config.Config) error {
	port := cfg.ServerPort
	if port == "" {
		port = "8000"
	}
	zaplogger.Info("SERVER STARTED ON PORT " + port)
	if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
