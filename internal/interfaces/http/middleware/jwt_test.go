package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJWTTestRouter(jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health"},
	}))
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   GetJWTUserID(c),
			"tenant_id": GetJWTTenantID(c),
		})
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-0123456789abcdef01234567", "stockledger", "")
	r := setupJWTTestRouter(jwtService)

	t.Run("skip path bypasses auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, "Basic abc123")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("user-1", "tenant-1", "alice", -time.Minute)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_TOKEN_EXPIRED")
	})

	t.Run("valid token exposes claims", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-1")
		assert.Contains(t, w.Body.String(), "tenant-1")
	})
}
