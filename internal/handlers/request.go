package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/juan49ers-spec/Repaart-sub012/internal/middleware"
	"github.com/juan49ers-spec/Repaart-sub012/internal/models"
	"github.com/juan49ers-spec/Repaart-sub012/internal/repositories"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
)

var errEmptyBody = errors.New("request body is required")

// actor returns the token actor when there is one, otherwise the value sent by the client
func actor(c *gin.Context, fromBody string) string {
	if a := middleware.GetActor(c); a != "" {
		return a
	}
	return fromBody
}

// lambdaActor is the serverless counterpart of actor
func lambdaActor(req *lambda.Request, fromBody string) string {
	if req.Actor != "" {
		return req.Actor
	}
	return fromBody
}

// decodeBody unmarshals a serverless request body
func decodeBody(req *lambda.Request, v interface{}) error {
	if len(req.Body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(req.Body, v)
}

// decodeOptionalBody unmarshals a body that may be absent
func decodeOptionalBody(req *lambda.Request, v interface{}) error {
	if len(req.Body) == 0 {
		return nil
	}
	return json.Unmarshal(req.Body, v)
}

// parseInvoiceFilter reads listing filters from query parameters
func parseInvoiceFilter(query func(string) string) (*repositories.InvoiceFilter, error) {
	filter := &repositories.InvoiceFilter{
		FranchiseID:   query("franchise_id"),
		CustomerID:    query("customer_id"),
		Status:        models.InvoiceStatus(query("status")),
		Type:          models.InvoiceType(query("type")),
		PaymentStatus: models.PaymentStatus(query("payment_status")),
		Period:        query("period"),
	}

	if v := query("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid created_after parameter: must be in RFC3339 format")
		}
		filter.CreatedAfter = &t
	}
	if v := query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit parameter: must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if v := query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid offset parameter: must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
