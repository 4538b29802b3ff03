package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CORS allows the configured browser origins. A "*" entry allows every
// origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range allowedOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	if !corsConfig.AllowAllOrigins && len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	return cors.New(corsConfig)
}

// ErrorHandler logs errors attached to the context and answers with a
// generic body when the handler did not write a response
func ErrorHandler(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"error":      err.Error(),
		}).Error("Request error")

		if c.Writer.Written() {
			return
		}

		response := ErrorResponse{
			RequestID: c.GetString(RequestIDKey),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		switch err.Type {
		case gin.ErrorTypeBind:
			response.Error = "Invalid request format"
			response.Message = err.Error()
			c.JSON(http.StatusBadRequest, response)
		case gin.ErrorTypePublic:
			response.Error = "Request failed"
			response.Message = err.Error()
			c.JSON(http.StatusBadRequest, response)
		default:
			response.Error = "Internal server error"
			response.Message = "An internal error occurred"
			c.JSON(http.StatusInternalServerError, response)
		}
	}
}

// Recovery turns panics into a 500 response and logs them
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"panic":      recovered,
		}).Error("Recovered from panic")

		abortWith(c, http.StatusInternalServerError, "Internal server error", "An internal error occurred")
	})
}
