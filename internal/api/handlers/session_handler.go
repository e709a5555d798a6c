package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/pkg/utils/response"
)

// SessionHandler reports on the Kite session and fetch history
type SessionHandler struct {
	bridge    *service.Bridge
	fetchLogs *repository.FetchLogRepository
}

// NewSessionHandler creates a new handler; fetchLogs may be nil
func NewSessionHandler(bridge *service.Bridge, fetchLogs *repository.FetchLogRepository) *SessionHandler {
	return &SessionHandler{bridge: bridge, fetchLogs: fetchLogs}
}

// Status returns the credential state. The token itself is never returned.
func (h *SessionHandler) Status(c echo.Context) error {
	state, userID := h.bridge.SessionStatus(c.Request().Context())
	return response.SuccessResponse(c, map[string]interface{}{
		"state":        state,
		"user_id":      userID,
		"system_ready": h.bridge.Ready(),
		"breaker":      h.bridge.BreakerState(),
	})
}

// FetchLogs lists recent fetches, newest first
func (h *SessionHandler) FetchLogs(c echo.Context) error {
	if h.fetchLogs == nil {
		return response.ErrorResponse(c, http.StatusNotFound, response.GeneralException, "Fetch logs need a Postgres connection")
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "`limit` must be between 1 and 500")
		}
		limit = n
	}
	rows, err := h.fetchLogs.Recent(c.Request().Context(), limit)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}
	return response.SuccessResponse(c, rows)
}
