// Package billing contains the domain model for usage-based overage billing.
//
// The core aggregate is UsagePeriod: one row per customer per billing period,
// written by the usage accounting pipeline at period rollover and mutated only
// when an overage charge is invoiced. Rows are never deleted so the invoiced
// history doubles as an audit trail against the payment processor's ledger.
//
// Calculator turns a usage period and its subscription into an OverageCharge,
// a transient value object consumed by the application-level invoicer. The
// calculation is pure and safely repeatable; idempotency of the overall charge
// flow is enforced at the persistence layer via a conditional mark-invoiced
// write.
package billing
