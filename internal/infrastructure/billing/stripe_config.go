package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
)

// StripeConfig holds Stripe API configuration
type StripeConfig struct {
	SecretKey     string
	IsTestMode    bool
	SubmitTimeout time.Duration
}

// Validate checks the configuration for correctness
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_test_") {
		return fmt.Errorf("stripe: test mode requires a test secret key (sk_test_...)")
	}
	if !c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_live_") {
		return fmt.Errorf("stripe: live mode requires a live secret key (sk_live_...)")
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	return nil
}

// InitStripeClient initializes the global Stripe client with the given config
func InitStripeClient(cfg *StripeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stripe.Key = cfg.SecretKey
	return nil
}
