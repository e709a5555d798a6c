package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/pkg/utils/response"
)

// CronHandler runs scheduled jobs on demand
type CronHandler struct {
	CronService *service.CronService
}

func NewCronHandler(cronService *service.CronService) *CronHandler {
	return &CronHandler{CronService: cronService}
}

// SessionRefreshJob logs in again if the cached credential is no longer valid
func (h *CronHandler) SessionRefreshJob(c echo.Context) error {
	h.CronService.SessionRefreshJob()
	return response.SuccessResponse(c, "Session refreshed")
}

// SessionExpireJob retires the day's session
func (h *CronHandler) SessionExpireJob(c echo.Context) error {
	h.CronService.SessionExpireJob()
	return response.SuccessResponse(c, "Session expired")
}

// DropdownRefreshJob reloads the dropdown options
func (h *CronHandler) DropdownRefreshJob(c echo.Context) error {
	h.CronService.DropdownRefreshJob()
	return response.SuccessResponse(c, "Dropdowns refreshed")
}
