package shop

import (
	"fmt"
	"strings"
	"time"
)

// Plan is one purchasable access-key validity period with a fixed price.
type Plan struct {
	Duration string `yaml:"duration"`
	Title    string `yaml:"title"`
	Price    int64  `yaml:"price"`
}

// Config holds storefront settings.
type Config struct {
	Payee           string  `yaml:"payee" envconfig:"UPI_ID"`
	Merchant        string  `yaml:"merchant" envconfig:"SHOP_MERCHANT"`
	Currency        string  `yaml:"currency" envconfig:"SHOP_CURRENCY"`
	PendingTTLHours int     `yaml:"pending_ttl_hours" envconfig:"SHOP_PENDING_TTL_HOURS"`
	FundPresets     []int64 `yaml:"fund_presets"`
	Plans           []Plan  `yaml:"plans"`
}

// DefaultPlans returns the stock plan set used when the config lists none.
func DefaultPlans() []Plan {
	return []Plan{
		{Duration: "1", Title: "1 Day", Price: 200},
		{Duration: "7", Title: "7 Days", Price: 500},
		{Duration: "30", Title: "30 Days", Price: 1400},
	}
}

// Normalize validates shop settings and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil shop config")
	}
	if strings.TrimSpace(cfg.Payee) == "" {
		return fmt.Errorf("shop.payee is required")
	}
	if strings.TrimSpace(cfg.Merchant) == "" {
		cfg.Merchant = "KEYSHOP"
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "INR"
	}
	if cfg.PendingTTLHours <= 0 {
		cfg.PendingTTLHours = 24
	}
	if len(cfg.FundPresets) == 0 {
		cfg.FundPresets = []int64{200, 700, 1400}
	}
	for _, amount := range cfg.FundPresets {
		if amount <= 0 {
			return fmt.Errorf("shop.fund_presets must be positive, got %d", amount)
		}
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for i, plan := range cfg.Plans {
		d := strings.TrimSpace(plan.Duration)
		if d == "" {
			return fmt.Errorf("shop.plans[%d]: duration is required", i)
		}
		if plan.Price <= 0 {
			return fmt.Errorf("shop.plans[%d]: price must be positive", i)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("shop.plans: duplicate duration %q", d)
		}
		seen[d] = struct{}{}
		cfg.Plans[i].Duration = d
		if strings.TrimSpace(cfg.Plans[i].Title) == "" {
			cfg.Plans[i].Title = d + " Days"
		}
	}
	return nil
}

// Plan returns the configured plan for a duration label.
func (c Config) Plan(duration string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.Duration == duration {
			return p, true
		}
	}
	return Plan{}, false
}

// PendingTTL returns the lifetime of a funding request.
func (c Config) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLHours) * time.Hour
}
