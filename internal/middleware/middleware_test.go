package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	logrus.SetLevel(logrus.PanicLevel)
}

func newTestRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware...)
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"actor":        GetActor(c),
			"franchise_id": c.GetString(FranchiseIDKey),
		})
	})
	router.GET("/invoices/:period", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func perform(router http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTokenValidator(t *testing.T) {
	validator := NewTokenValidator(testSecret, "repaart")
	token, err := validator.GenerateToken(Claims{
		UserID:      "user-1",
		Email:       "admin@repaart.es",
		FranchiseID: "franchise-madrid",
		Roles:       []string{RoleAdmin},
	}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Actor() != "admin@repaart.es" {
		t.Errorf("expected email as actor, got %s", claims.Actor())
	}
	if !claims.HasRole(RoleFranchise, RoleAdmin) {
		t.Error("expected admin role")
	}

	other := NewTokenValidator("another-secret", "repaart")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret should be rejected")
	}

	expired, _ := validator.GenerateToken(Claims{UserID: "user-1"}, -time.Minute)
	if _, err := validator.ValidateToken(expired); err == nil {
		t.Error("expired token should be rejected")
	}

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", ErrMissingToken},
		{"no scheme", token, ErrMalformedHeader},
		{"basic scheme", "Basic " + token, ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := validator.ClaimsFromHeader(tt.header); err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestActorExtraction(t *testing.T) {
	validator := NewTokenValidator(testSecret, "")
	token, _ := validator.GenerateToken(Claims{
		UserID:      "user-1",
		FranchiseID: "franchise-madrid",
	}, time.Hour)

	tests := []struct {
		name       string
		required   bool
		header     string
		wantStatus int
		wantActor  bool
	}{
		{"optional without token", false, "", http.StatusOK, false},
		{"optional with bad token", false, "Bearer nope", http.StatusOK, false},
		{"optional with token", false, "Bearer " + token, http.StatusOK, true},
		{"required without token", true, "", http.StatusUnauthorized, false},
		{"required with token", true, "Bearer " + token, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(RequestID(), ActorExtraction(validator, tt.required))
			rec := perform(router, "/whoami", tt.header)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			hasActor := rec.Code == http.StatusOK && strings.Contains(rec.Body.String(), `"actor":"user-1"`)
			if hasActor != tt.wantActor {
				t.Errorf("actor presence = %v, want %v (body %s)", hasActor, tt.wantActor, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	validator := NewTokenValidator(testSecret, "")
	admin, _ := validator.GenerateToken(Claims{UserID: "a", Roles: []string{RoleAdmin}}, time.Hour)
	franchise, _ := validator.GenerateToken(Claims{UserID: "f", Roles: []string{RoleFranchise}}, time.Hour)

	router := newTestRouter(ActorExtraction(validator, false), RequireRole(false, RoleAdmin))

	if rec := perform(router, "/whoami", "Bearer "+admin); rec.Code != http.StatusOK {
		t.Errorf("admin should pass, got %d", rec.Code)
	}
	if rec := perform(router, "/whoami", "Bearer "+franchise); rec.Code != http.StatusForbidden {
		t.Errorf("franchise role should be forbidden, got %d", rec.Code)
	}
	if rec := perform(router, "/whoami", ""); rec.Code != http.StatusOK {
		t.Errorf("anonymous requests pass when tokens are optional, got %d", rec.Code)
	}

	strict := newTestRouter(ActorExtraction(validator, false), RequireRole(true, RoleAdmin))
	if rec := perform(strict, "/whoami", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous requests need a token when required, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	router := newTestRouter(RequestID())

	rec := perform(router, "/whoami", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected incoming request id to be kept, got %s", got)
	}
}

func TestRateLimiter(t *testing.T) {
	router := newTestRouter(RateLimiter(0.001, 1))

	if rec := perform(router, "/whoami", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	if rec := perform(router, "/whoami", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request should be limited, got %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	router := newTestRouter(RequestValidation())

	tests := []struct {
		path string
		want int
	}{
		{"/invoices/2026-03", http.StatusNoContent},
		{"/invoices/march", http.StatusBadRequest},
		{"/whoami?limit=5000", http.StatusBadRequest},
		{"/whoami?offset=-1", http.StatusBadRequest},
		{"/whoami?period=2026-3x", http.StatusBadRequest},
		{"/whoami?limit=10&period=2026-03", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := perform(router, tt.path, ""); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	router := newTestRouter(CORS([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/whoami", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected unknown origin to be rejected, got %d", rec.Code)
	}
}
