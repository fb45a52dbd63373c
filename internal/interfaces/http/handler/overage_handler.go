package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/ecoapi/backend/internal/application/billing"
	"github.com/ecoapi/backend/internal/interfaces/http/middleware"
)

// SummaryReader serves read-only overage summaries
type SummaryReader interface {
	GetSummary(ctx context.Context, customerID string) (*appbilling.OverageSummary, error)
}

// OverageReconciler runs the batch reconciliation sweep
type OverageReconciler interface {
	RunMonthly(ctx context.Context, referenceDate time.Time) (*appbilling.BatchResult, error)
}

// OverageHandler exposes the overage summary and batch reconciliation endpoints
type OverageHandler struct {
	BaseHandler
	summaries  SummaryReader
	reconciler OverageReconciler
	jwtAuth    gin.HandlerFunc
	cronAuth   gin.HandlerFunc
	logger     *zap.Logger
}

// NewOverageHandler creates a new overage handler
func NewOverageHandler(
	summaries SummaryReader,
	reconciler OverageReconciler,
	jwtAuth gin.HandlerFunc,
	cronAuth gin.HandlerFunc,
	logger *zap.Logger,
) *OverageHandler {
	return &OverageHandler{
		summaries:  summaries,
		reconciler: reconciler,
		jwtAuth:    jwtAuth,
		cronAuth:   cronAuth,
		logger:     logger,
	}
}

// RegisterRoutes registers overage routes
func (h *OverageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	usage := rg.Group("/usage", h.jwtAuth)
	usage.GET("/overage", h.GetOverageSummary)

	cron := rg.Group("/cron", h.cronAuth)
	cron.POST("/process-overage", h.ProcessOverage)
}

// GetOverageSummary returns the authenticated customer's current overage position
func (h *OverageHandler) GetOverageSummary(c *gin.Context) {
	customerID := middleware.GetJWTCustomerID(c)
	if customerID == "" {
		h.Unauthorized(c, "Not authenticated")
		return
	}

	summary, err := h.summaries.GetSummary(c.Request.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to build overage summary",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		h.InternalError(c, "Failed to load overage summary")
		return
	}

	h.Success(c, summary)
}

// ProcessOverage runs the reconciliation sweep for all chargeable periods.
// An optional reference_date query parameter (YYYY-MM-DD) lets operators
// replay a past cutoff; it defaults to now.
func (h *OverageHandler) ProcessOverage(c *gin.Context) {
	referenceDate := time.Now().UTC()
	if raw := c.Query("reference_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.BadRequest(c, "reference_date must be formatted as YYYY-MM-DD")
			return
		}
		referenceDate = parsed
	}

	result, err := h.reconciler.RunMonthly(c.Request.Context(), referenceDate)
	if err != nil {
		h.logger.Error("overage reconciliation run failed",
			zap.Time("reference_date", referenceDate),
			zap.Error(err),
		)
		h.InternalError(c, "Reconciliation run failed")
		return
	}

	h.Success(c, result)
}
