package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanOverageEligible(t *testing.T) {
	assert.False(t, PlanFree.OverageEligible())
	assert.True(t, PlanPro.OverageEligible())
	assert.False(t, PlanEnterprise.OverageEligible())
	assert.False(t, Plan("unknown").OverageEligible())
}

func TestParsePlan(t *testing.T) {
	plan, ok := ParsePlan("pro")
	assert.True(t, ok)
	assert.Equal(t, PlanPro, plan)

	_, ok = ParsePlan("platinum")
	assert.False(t, ok)
}
