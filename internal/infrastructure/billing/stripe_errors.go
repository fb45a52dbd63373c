package billing

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/stripe/stripe-go/v81"
)

// TransientError marks a gateway failure worth retrying on a later run,
// such as a timeout, a connection failure, or a 5xx from Stripe.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("stripe: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks the error as safe to retry on a later reconciliation run
func (e *TransientError) Transient() bool { return true }

// RejectedError marks a definitive rejection by Stripe. Retrying the same
// request will not succeed.
type RejectedError struct {
	Code string
	Err  error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("stripe: request rejected (%s): %v", e.Code, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Transient reports that a rejection will not succeed on retry
func (e *RejectedError) Transient() bool { return false }

// IsTransient reports whether err is a retryable gateway failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is a definitive gateway rejection
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// classifyStripeError wraps a raw Stripe client error into either a
// TransientError or a RejectedError. Timeouts, network failures, rate
// limits and server errors are transient; everything Stripe explicitly
// rejected is permanent.
func classifyStripeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 {
			return &TransientError{Err: err}
		}
		// v81 has no constant for connection errors, only the wire value.
		if string(stripeErr.Type) == "api_connection_error" {
			return &TransientError{Err: err}
		}
		return &RejectedError{Code: string(stripeErr.Code), Err: err}
	}

	// Unrecognized failures are treated as transient so a later run can
	// retry rather than silently dropping the charge.
	return &TransientError{Err: err}
}
