// Package api contains the API routes for the option chain bridge
package api

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/nsvirk/ocbridge/internal/api/handlers"
	"github.com/nsvirk/ocbridge/internal/api/middleware"
	"github.com/nsvirk/ocbridge/internal/config"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/pkg/utils/response"
)

// SetupRoutes configures the routes for the API. fetchLogs and cronService may be nil.
func SetupRoutes(e *echo.Echo, cfg *config.Config, bridge *service.Bridge, fetchLogs *repository.FetchLogRepository, cronService *service.CronService) {
	bridgeHandler := handlers.NewBridgeHandler(bridge)
	sessionHandler := handlers.NewSessionHandler(bridge, fetchLogs)

	// Health route (unprotected)
	e.GET("/health", bridgeHandler.Health)

	// Create a group for all API routes
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.APIKey))

	// Index route
	api.GET("/", indexRoute(cfg))

	// Bridge routes
	api.POST("/initialize", bridgeHandler.Initialize)
	api.GET("/dropdown-options", bridgeHandler.DropdownOptions)
	api.POST("/fetch-option-data", bridgeHandler.FetchOptionData)

	// Session routes
	sessionGroup := api.Group("/session")
	sessionGroup.GET("/status", sessionHandler.Status)

	api.GET("/fetch-logs", sessionHandler.FetchLogs)

	// Cron routes, for running a job by hand
	if cronService != nil {
		cronHandler := handlers.NewCronHandler(cronService)
		cronGroup := api.Group("/cron")
		cronGroup.POST("/session/refresh", cronHandler.SessionRefreshJob)
		cronGroup.POST("/session/expire", cronHandler.SessionExpireJob)
		cronGroup.POST("/dropdowns/refresh", cronHandler.DropdownRefreshJob)
	}
}

// indexRoute sets up the index route for the API
func indexRoute(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		message := fmt.Sprintf("%s %s", cfg.APIName, cfg.APIVersion)
		return response.SuccessResponse(c, message)
	}
}
