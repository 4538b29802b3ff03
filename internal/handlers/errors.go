package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

// errServiceUnavailable marks operations whose backing service is not configured
var errServiceUnavailable = errors.New("service not configured")

// statusForError maps billing error kinds onto HTTP statuses
func statusForError(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case models.IsNotFound(err):
		return http.StatusNotFound
	case models.IsInvalidState(err), models.IsConcurrencyConflict(err):
		return http.StatusConflict
	case models.IsPersistence(err), errors.Is(err, errServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// newErrorResponse builds the response body for a failed operation
func newErrorResponse(title string, err error) ErrorResponse {
	response := ErrorResponse{
		Error:   title,
		Message: models.UserMessage(err),
		Code:    models.ErrorCode(err),
	}
	var billingErr *models.BillingError
	if errors.As(err, &billingErr) {
		response.Field = billingErr.Field
	}
	return response
}

// respondError writes the error response and records the error on the context
func respondError(c *gin.Context, title string, err error) {
	_ = c.Error(err)
	c.JSON(statusForError(err), newErrorResponse(title, err))
}

// respondBadRequest answers a request whose body or parameters could not be read
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: err.Error(),
		Code:    models.CodeValidation,
	})
}

// lambdaError is the serverless counterpart of respondError
func lambdaError(title string, err error) (*lambda.Response, error) {
	return lambda.JSON(statusForError(err), newErrorResponse(title, err))
}

// lambdaBadRequest is the serverless counterpart of respondBadRequest
func lambdaBadRequest(err error) (*lambda.Response, error) {
	return lambda.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: err.Error(),
		Code:    models.CodeValidation,
	})
}
