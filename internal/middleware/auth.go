package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Context keys set by ActorExtraction
const (
	ActorKey       = "actor"
	ClaimsKey      = "claims"
	FranchiseIDKey = "franchise_id"
)

// Roles carried in tokens
const (
	RoleAdmin     = "admin"
	RoleFranchise = "franchise"
)

var (
	// ErrMissingToken is returned when no bearer token is present
	ErrMissingToken = errors.New("authorization header is required")

	// ErrMalformedHeader is returned when the header is not "Bearer <token>"
	ErrMalformedHeader = errors.New("invalid authorization header format, expected: Bearer <token>")
)

// Claims represents JWT claims. Tokens are issued by the identity provider;
// this service only reads them to know who is acting.
type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	FranchiseID string   `json:"franchise_id,omitempty"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// Actor returns the name recorded in created_by / issued_by fields
func (c *Claims) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// HasRole reports whether the token carries one of the roles
func (c *Claims) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenValidator validates HMAC signed tokens
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator creates a validator. An empty issuer accepts any issuer.
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// GenerateToken signs a token. Used by tooling and tests.
func (v *TokenValidator) GenerateToken(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns its claims
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ClaimsFromHeader validates the token of an Authorization header value
func (v *TokenValidator) ClaimsFromHeader(header string) (*Claims, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrMalformedHeader
	}
	return v.ValidateToken(parts[1])
}

// ActorExtraction reads the bearer token and stores the actor in the context.
// With required unset, requests without a valid token continue anonymously.
func ActorExtraction(validator *TokenValidator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}

		claims, err := validator.ClaimsFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			if !required {
				if !errors.Is(err, ErrMissingToken) {
					logrus.WithFields(logrus.Fields{
						"error": err.Error(),
						"path":  c.Request.URL.Path,
					}).Debug("Ignoring invalid bearer token")
				}
				c.Next()
				return
			}

			logrus.WithFields(logrus.Fields{
				"error":      err.Error(),
				"path":       c.Request.URL.Path,
				"request_id": c.GetString(RequestIDKey),
			}).Warn("Token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:     "Unauthorized",
				Message:   err.Error(),
				RequestID: c.GetString(RequestIDKey),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(ActorKey, claims.Actor())
		if claims.FranchiseID != "" {
			c.Set(FranchiseIDKey, claims.FranchiseID)
		}
		c.Next()
	}
}

// RequireRole rejects requests whose token lacks every listed role.
// Anonymous requests are let through when tokens are optional.
func RequireRole(required bool, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
					Error:     "Unauthorized",
					Message:   ErrMissingToken.Error(),
					RequestID: c.GetString(RequestIDKey),
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
				return
			}
			c.Next()
			return
		}

		if !claims.HasRole(roles...) {
			logrus.WithFields(logrus.Fields{
				"actor":          claims.Actor(),
				"user_roles":     claims.Roles,
				"required_roles": roles,
				"path":           c.Request.URL.Path,
			}).Warn("Authorization failed - insufficient permissions")
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:     "Forbidden",
				Message:   "insufficient permissions",
				RequestID: c.GetString(RequestIDKey),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		c.Next()
	}
}

// GetActor returns the actor stored by ActorExtraction, or an empty string
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}

// GetClaims returns the validated claims, or nil for anonymous requests
func GetClaims(c *gin.Context) *Claims {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*Claims)
	return claims
}
