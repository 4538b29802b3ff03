package models

import (
	"errors"
	"time"
)

// PaginationResult represents paginated results
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"has_next"`
}

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success    bool              `json:"success"`
	Data       interface{}       `json:"data,omitempty"`
	Error      *APIError         `json:"error,omitempty"`
	Pagination *PaginationResult `json:"pagination,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewAPIError converts an error into its API representation.
// Errors that are not billing errors are reported as persistence failures.
func NewAPIError(err error) *APIError {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return &APIError{Code: billingErr.Code, Message: billingErr.Message, Field: billingErr.Field}
	}
	return &APIError{Code: CodePersistence, Message: UserMessage(err)}
}

// HealthCheck represents system health status
type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Backend   string            `json:"backend"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}
