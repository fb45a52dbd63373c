package billing

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ecoapi/backend/internal/domain/billing"
)

// PaymentGateway submits an overage charge to the payment processor and
// returns the processor-side invoice item ID. Implementations classify
// failures by implementing Transient() bool on the returned error.
type PaymentGateway interface {
	SubmitInvoiceItem(ctx context.Context, charge *billing.OverageCharge) (string, error)
}

// transientErr is implemented by gateway errors that are safe to retry
// on a later reconciliation run.
type transientErr interface {
	Transient() bool
}

func isRetryable(err error) bool {
	var te transientErr
	return errors.As(err, &te) && te.Transient()
}

// InvoiceStatus tags the outcome of invoicing a single usage period
type InvoiceStatus string

const (
	// StatusInvoiced means the charge was submitted and recorded
	StatusInvoiced InvoiceStatus = "invoiced"
	// StatusSkipped means the period needed no charge
	StatusSkipped InvoiceStatus = "skipped"
	// StatusFailed means the charge could not be completed
	StatusFailed InvoiceStatus = "failed"
)

// InvoiceResult is the exhaustive outcome of invoicing one usage period.
// Exactly one of the three statuses applies; SkipReason is set only for
// skips, InvoiceItemID and CostCents only for invoiced periods, and
// Retryable plus Err only for failures.
type InvoiceResult struct {
	Status        InvoiceStatus
	SkipReason    billing.SkipReason
	InvoiceItemID string
	CostCents     int64
	Retryable     bool
	Err           error
}

// InvoicerService charges a single usage period exactly once. It owns the
// ordering guarantee that the invoiced flag is only set after the gateway
// accepted the charge, and the conditional write that prevents a concurrent
// run from submitting the same period twice.
type InvoicerService struct {
	periods         billing.UsagePeriodRepository
	gateway         PaymentGateway
	reviewThreshold int
	logger          *zap.Logger
}

// NewInvoicerService creates a new invoicer service
func NewInvoicerService(
	periods billing.UsagePeriodRepository,
	gateway PaymentGateway,
	reviewThreshold int,
	logger *zap.Logger,
) *InvoicerService {
	if reviewThreshold <= 0 {
		reviewThreshold = 3
	}
	return &InvoicerService{
		periods:         periods,
		gateway:         gateway,
		reviewThreshold: reviewThreshold,
		logger:          logger,
	}
}

// Invoice charges one usage period. Calling it again for the same period is
// safe: an already invoiced period is skipped, and the conditional persistence
// write catches the race where two runs pass the check at once.
func (s *InvoicerService) Invoice(ctx context.Context, cp billing.ChargeablePeriod) InvoiceResult {
	charge, skip, err := billing.Calculate(cp.Period, cp.Subscription)
	if err != nil {
		return InvoiceResult{Status: StatusFailed, Retryable: false, Err: err}
	}

	if skip == billing.SkipMissingPayee {
		// The subscription has no payment processor customer, so the charge
		// can never succeed until an operator fixes the subscription record.
		return s.permanentFailure(ctx, cp, skip, errors.New("subscription has no stripe customer"))
	}
	if skip != billing.SkipNone {
		s.logger.Debug("usage period skipped",
			zap.String("period_id", cp.Period.ID.String()),
			zap.String("reason", skip.String()),
		)
		return InvoiceResult{Status: StatusSkipped, SkipReason: skip}
	}

	itemID, err := s.gateway.SubmitInvoiceItem(ctx, charge)
	if err != nil {
		if isRetryable(err) {
			s.logger.Warn("gateway submission failed, will retry next run",
				zap.String("period_id", cp.Period.ID.String()),
				zap.String("customer_id", charge.CustomerID),
				zap.Error(err),
			)
			return InvoiceResult{Status: StatusFailed, Retryable: true, Err: err}
		}
		return s.permanentFailure(ctx, cp, billing.SkipNone, err)
	}

	if err := s.periods.MarkInvoiced(ctx, cp.Period.ID, itemID, charge.CostCents); err != nil {
		if errors.Is(err, billing.ErrAlreadyInvoiced) {
			// A concurrent run won the conditional write after we submitted.
			// The customer now has two invoice items; flag loudly for ops.
			s.logger.Error("duplicate invoice item submitted for usage period",
				zap.String("period_id", cp.Period.ID.String()),
				zap.String("customer_id", charge.CustomerID),
				zap.String("invoice_item_id", itemID),
			)
			return InvoiceResult{Status: StatusInvoiced, InvoiceItemID: itemID, CostCents: charge.CostCents}
		}
		// Money moved but the local record did not. Never retry this row
		// automatically, the customer would be charged twice.
		s.logger.Error("invoice item created but persistence failed, manual fix required",
			zap.String("period_id", cp.Period.ID.String()),
			zap.String("customer_id", charge.CustomerID),
			zap.String("invoice_item_id", itemID),
			zap.Int64("cost_cents", charge.CostCents),
			zap.Error(err),
		)
		return InvoiceResult{Status: StatusFailed, Retryable: false, Err: err}
	}

	s.logger.Info("usage period invoiced",
		zap.String("period_id", cp.Period.ID.String()),
		zap.String("customer_id", charge.CustomerID),
		zap.String("invoice_item_id", itemID),
		zap.Int64("overage_calls", charge.OverageCalls),
		zap.Int64("cost_cents", charge.CostCents),
	)
	return InvoiceResult{Status: StatusInvoiced, InvoiceItemID: itemID, CostCents: charge.CostCents}
}

// permanentFailure records a non-retryable failure against the period and
// flags it for manual review once the threshold is reached.
func (s *InvoicerService) permanentFailure(ctx context.Context, cp billing.ChargeablePeriod, skip billing.SkipReason, cause error) InvoiceResult {
	flagged, err := s.periods.RecordPermanentFailure(ctx, cp.Period.ID, s.reviewThreshold)
	if err != nil {
		s.logger.Error("failed to record permanent failure",
			zap.String("period_id", cp.Period.ID.String()),
			zap.Error(err),
		)
	}
	fields := []zap.Field{
		zap.String("period_id", cp.Period.ID.String()),
		zap.String("customer_id", cp.Period.CustomerID),
		zap.Error(cause),
	}
	if flagged {
		s.logger.Warn("usage period flagged for manual review", fields...)
	} else {
		s.logger.Warn("permanent invoicing failure", fields...)
	}
	return InvoiceResult{Status: StatusFailed, SkipReason: skip, Retryable: false, Err: cause}
}
