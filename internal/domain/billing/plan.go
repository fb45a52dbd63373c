package billing

// Plan identifies a subscription plan tier.
type Plan string

const (
	// PlanFree blocks API usage at the included quota; no overage billing.
	PlanFree Plan = "free"

	// PlanPro allows usage beyond the included quota and bills the overage.
	PlanPro Plan = "pro"

	// PlanEnterprise has no metered quota; overage never applies.
	PlanEnterprise Plan = "enterprise"
)

// String returns the string representation of the plan
func (p Plan) String() string {
	return string(p)
}

// IsValid returns true if the plan is a known tier
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// OverageEligible returns true if usage beyond the quota is billed for this
// plan rather than blocked (free) or uncapped (enterprise).
func (p Plan) OverageEligible() bool {
	return p == PlanPro
}

// ParsePlan parses a plan string, returning false for unknown tiers
func ParsePlan(s string) (Plan, bool) {
	p := Plan(s)
	return p, p.IsValid()
}
