package billing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ecoapi/backend/internal/domain/billing"
)

// Invoicer charges one chargeable period. Satisfied by InvoicerService.
type Invoicer interface {
	Invoice(ctx context.Context, cp billing.ChargeablePeriod) InvoiceResult
}

// ChargeOutcome reports what happened to a single usage period in a batch run
type ChargeOutcome struct {
	PeriodID      string             `json:"period_id"`
	CustomerID    string             `json:"customer_id"`
	OverageCalls  int64              `json:"overage_calls"`
	Status        InvoiceStatus      `json:"status"`
	SkipReason    billing.SkipReason `json:"skip_reason,omitempty"`
	InvoiceItemID string             `json:"invoice_item_id,omitempty"`
	CostCents     int64              `json:"cost_cents,omitempty"`
	Retryable     bool               `json:"retryable,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// BatchResult summarizes a reconciliation run. Processed counts the rows
// that reached a terminal decision (invoiced or skipped); failed rows stay
// eligible for a later run unless flagged for review.
type BatchResult struct {
	Processed int             `json:"processed"`
	Charges   []ChargeOutcome `json:"charges"`
}

// ReconcileService sweeps all chargeable usage periods and invoices each one,
// isolating per-row failures so one bad row never blocks the rest of the batch.
type ReconcileService struct {
	periods  billing.UsagePeriodRepository
	invoicer Invoicer
	logger   *zap.Logger
}

// NewReconcileService creates a new reconciliation service
func NewReconcileService(
	periods billing.UsagePeriodRepository,
	invoicer Invoicer,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		periods:  periods,
		invoicer: invoicer,
		logger:   logger,
	}
}

// RunMonthly invoices every chargeable period that closed on or before
// referenceDate. Rows are handled oldest first; a canceled context stops the
// sweep between rows and returns the partial result alongside the context
// error so completed work is still reported.
func (s *ReconcileService) RunMonthly(ctx context.Context, referenceDate time.Time) (*BatchResult, error) {
	candidates, err := s.periods.FindChargeable(ctx, referenceDate)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting overage reconciliation",
		zap.Time("reference_date", referenceDate),
		zap.Int("candidates", len(candidates)),
	)

	result := &BatchResult{Charges: make([]ChargeOutcome, 0, len(candidates))}
	for _, cp := range candidates {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("reconciliation interrupted",
				zap.Int("processed", result.Processed),
				zap.Int("remaining", len(candidates)-len(result.Charges)),
				zap.Error(err),
			)
			return result, err
		}

		r := s.invoicer.Invoice(ctx, cp)
		outcome := ChargeOutcome{
			PeriodID:      cp.Period.ID.String(),
			CustomerID:    cp.Period.CustomerID,
			OverageCalls:  cp.Period.OverageCalls,
			Status:        r.Status,
			SkipReason:    r.SkipReason,
			InvoiceItemID: r.InvoiceItemID,
			CostCents:     r.CostCents,
			Retryable:     r.Retryable,
		}
		if r.Err != nil {
			outcome.Error = r.Err.Error()
		}
		result.Charges = append(result.Charges, outcome)
		if r.Status != StatusFailed {
			result.Processed++
		}
	}

	s.logger.Info("overage reconciliation finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", len(result.Charges)-result.Processed),
	)
	return result, nil
}
