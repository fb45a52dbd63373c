package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoapi/backend/internal/infrastructure/auth"
	"github.com/ecoapi/backend/internal/infrastructure/config"
)

func jwtTestRouter(svc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuthMiddleware(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"customer_id": GetJWTCustomerID(c)})
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{
		Secret:     "test-secret-for-unit-tests",
		Issuer:     "ecoapi",
		Expiration: time.Hour,
	})

	t.Run("accepts a valid bearer token", func(t *testing.T) {
		token, err := svc.GenerateToken("cust_1")
		require.NoError(t, err)

		r := jwtTestRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cust_1")
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		r := jwtTestRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a non-bearer header", func(t *testing.T) {
		r := jwtTestRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthHeaderKey, "Basic abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a garbage token", func(t *testing.T) {
		r := jwtTestRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+"garbage")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
