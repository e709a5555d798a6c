// Package response contains the JSON envelope shared by every handler
package response

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Error types carried in the envelope
const (
	InputException          = "InputException"
	ServerException         = "ServerException"
	AuthenticationException = "AuthenticationException"
	NetworkException        = "NetworkException"
	GeneralException        = "GeneralException"
)

// Response represents the standard API response structure
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SuccessResponse sends a successful JSON response
func SuccessResponse(c echo.Context, data interface{}) error {
	return SuccessMessage(c, "", data)
}

// SuccessMessage sends a successful JSON response with a message
func SuccessMessage(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status:    "success",
		Message:   message,
		Data:      data,
		Timestamp: now(),
	})
}

// ErrorResponse sends an error JSON response
func ErrorResponse(c echo.Context, httpStatus int, errorType, message string) error {
	return c.JSON(httpStatus, Response{
		Status:    "error",
		ErrorType: errorType,
		Message:   message,
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
