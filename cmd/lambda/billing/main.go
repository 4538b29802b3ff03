package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/juan49ers-spec/Repaart-sub012/internal/handlers"
	"github.com/juan49ers-spec/Repaart-sub012/internal/middleware"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/lambda"
	"github.com/juan49ers-spec/Repaart-sub012/pkg/server"
)

var (
	container *server.Container
	router    *lambda.Router
)

func init() {
	var err error
	container, err = lambda.GetConnectionManager().GetContainer(context.Background())
	if err != nil {
		panic("Failed to initialize container: " + err.Error())
	}

	router = lambda.NewRouter("/api/v1")
	handlers.RegisterLambdaRoutes(router, container.Services)
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	resp, _ := lambda.JSON(status, handlers.ErrorResponse{Error: http.StatusText(status), Message: message})
	return resp.ToAPIGateway()
}

// authorize resolves the actor of the request from its bearer token.
// It returns a response when the request must be rejected.
func authorize(req *lambda.Request) *events.APIGatewayProxyResponse {
	tokens := container.Tokens
	required := container.Config.JWT.Required
	if tokens == nil {
		return nil
	}

	claims, err := tokens.ClaimsFromHeader(req.Header("Authorization"))
	if err != nil {
		if !required {
			return nil
		}
		resp := errorResponse(http.StatusUnauthorized, err.Error())
		return &resp
	}
	req.Actor = claims.Actor()

	if required && req.Method == http.MethodPost && strings.HasSuffix(req.Path, "/close") && !claims.HasRole(middleware.RoleAdmin) {
		resp := errorResponse(http.StatusForbidden, "Insufficient permissions")
		return &resp
	}
	return nil
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	lambda.GetConnectionManager().UpdateLastUsed()
	req := lambda.FromAPIGateway(event)

	if rejected := authorize(req); rejected != nil {
		return *rejected, nil
	}

	resp, err := router.Dispatch(ctx, req)
	if err != nil {
		container.Logger.WithError(err).WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
		}).Error("Lambda request failed")
		return errorResponse(http.StatusInternalServerError, "Internal server error"), nil
	}

	return resp.ToAPIGateway(), nil
}

func main() {
	awslambda.Start(handler)
}
