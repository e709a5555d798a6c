// Package handlers contains the handlers for the API
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/service"
	"github.com/nsvirk/ocbridge/pkg/utils/response"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

const (
	defaultChainLength = 20
	minChainLength     = 5
	maxChainLength     = 50
)

// BridgeHandler is the handler for initialize, dropdown and fetch requests
type BridgeHandler struct {
	bridge *service.Bridge
}

// NewBridgeHandler creates a new handler for the bridge API
func NewBridgeHandler(bridge *service.Bridge) *BridgeHandler {
	return &BridgeHandler{bridge: bridge}
}

type initializeResponse struct {
	Message         string                 `json:"message"`
	DropdownOptions models.DropdownOptions `json:"dropdown_options"`
	Sources         map[string]string      `json:"sources,omitempty"`
	Timestamp       string                 `json:"timestamp"`
}

// Initialize logs in if needed and loads the dropdown options
func (h *BridgeHandler) Initialize(c echo.Context) error {
	res, err := h.bridge.Initialize(c.Request().Context())
	if err != nil {
		zaplogger.Error("initialize failed", zaplogger.Fields{"error": err.Error()})
		if isLoginError(err) {
			return response.ErrorResponse(c, http.StatusInternalServerError, response.AuthenticationException, err.Error())
		}
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}

	message := "System initialized successfully"
	if res.AlreadyInitialized {
		message = "System already initialized"
	}
	return response.SuccessMessage(c, message, initializeResponse{
		Message:         message,
		DropdownOptions: res.Options.DropdownOptions,
		Sources:         res.Options.Sources,
		Timestamp:       time.Now().Format(time.RFC3339),
	})
}

// DropdownOptions returns the symbols and expiries found during initialize
func (h *BridgeHandler) DropdownOptions(c echo.Context) error {
	res, err := h.bridge.DropdownOptions()
	if err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, err.Error())
	}
	return response.SuccessResponse(c, res.DropdownOptions)
}

// FetchOptionData refreshes the sheet for the requested chain and returns it
func (h *BridgeHandler) FetchOptionData(c echo.Context) error {
	var req models.FetchRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, "Invalid request body")
	}
	if err := validateFetchRequest(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, err.Error())
	}

	snap, err := h.bridge.Fetch(c.Request().Context(), req)
	switch {
	case err == nil:
		return response.SuccessResponse(c, snap)
	case errors.Is(err, service.ErrNotInitialized):
		return response.ErrorResponse(c, http.StatusBadRequest, response.InputException, err.Error())
	case errors.Is(err, service.ErrBreakerOpen):
		return response.ErrorResponse(c, http.StatusServiceUnavailable, response.NetworkException, "Workbook unavailable, retry later")
	default:
		zaplogger.Error("fetch failed", zaplogger.Fields{"symbol": req.Symbol, "error": err.Error()})
		return response.ErrorResponse(c, http.StatusInternalServerError, response.ServerException, err.Error())
	}
}

// Health reports whether the bridge can serve fetches
func (h *BridgeHandler) Health(c echo.Context) error {
	status := "initializing"
	if h.bridge.Ready() {
		status = "healthy"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       status,
		"system_ready": h.bridge.Ready(),
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

func validateFetchRequest(req *models.FetchRequest) error {
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.OptionExpiry = strings.TrimSpace(req.OptionExpiry)
	req.FutureExpiry = strings.TrimSpace(req.FutureExpiry)

	if req.Symbol == "" {
		return errors.New("`symbol` is required")
	}
	if req.OptionExpiry == "" {
		return errors.New("`option_expiry` is required")
	}
	if req.FutureExpiry == "" {
		return errors.New("`future_expiry` is required")
	}
	if req.ChainLength == 0 {
		req.ChainLength = defaultChainLength
	}
	if req.ChainLength < minChainLength || req.ChainLength > maxChainLength {
		return errors.New("`chain_length` must be between 5 and 50")
	}
	return nil
}

func isLoginError(err error) bool {
	return errors.Is(err, service.ErrLoginTimeout) ||
		errors.Is(err, service.ErrTokenNotFound) ||
		errors.Is(err, service.ErrLoginFailed)
}
