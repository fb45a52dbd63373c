package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ecoapi/backend/internal/interfaces/http/dto"
)

// CronSecretHeader is the dedicated header for the scheduler's shared secret
const CronSecretHeader = "X-Cron-Secret"

// CronAuthMiddleware authenticates batch endpoints called by an external
// scheduler. The secret is accepted either in the X-Cron-Secret header or as
// a bearer token. An unconfigured secret fails closed: every request gets a
// 500 until the deployment is fixed, rather than an open batch endpoint.
func CronAuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			logger.Error("cron endpoint called but no cron secret is configured",
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "Cron authentication not configured", GetRequestID(c)))
			return
		}

		provided := c.GetHeader(CronSecretHeader)
		if provided == "" {
			authHeader := c.GetHeader(AuthHeaderKey)
			if strings.HasPrefix(authHeader, BearerPrefix) {
				provided = strings.TrimPrefix(authHeader, BearerPrefix)
			}
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			logger.Warn("cron endpoint rejected invalid secret",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, "Invalid cron secret", GetRequestID(c)))
			return
		}

		c.Next()
	}
}
