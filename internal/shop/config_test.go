package shop

import (
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{Payee: "shop@upi"}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Merchant != "KEYSHOP" {
		t.Fatalf("merchant = %q", cfg.Merchant)
	}
	if cfg.Currency != "INR" {
		t.Fatalf("currency = %q", cfg.Currency)
	}
	if cfg.PendingTTL() != 24*time.Hour {
		t.Fatalf("ttl = %v", cfg.PendingTTL())
	}
	if len(cfg.Plans) != 3 {
		t.Fatalf("plans = %v", cfg.Plans)
	}
	plan, ok := cfg.Plan("7")
	if !ok || plan.Price != 500 {
		t.Fatalf("plan 7 = %+v, ok=%v", plan, ok)
	}
}

func TestNormalizeRequiresPayee(t *testing.T) {
	cfg := Config{}
	if err := Normalize(&cfg); err == nil {
		t.Fatal("expected error for missing payee")
	}
}

func TestNormalizeRejectsDuplicatePlans(t *testing.T) {
	cfg := Config{
		Payee: "shop@upi",
		Plans: []Plan{
			{Duration: "1", Price: 100},
			{Duration: "1", Price: 200},
		},
	}
	if err := Normalize(&cfg); err == nil {
		t.Fatal("expected error for duplicate duration")
	}
}

func TestNormalizeRejectsNonPositivePrice(t *testing.T) {
	cfg := Config{
		Payee: "shop@upi",
		Plans: []Plan{{Duration: "1", Price: 0}},
	}
	if err := Normalize(&cfg); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestNormalizeRejectsBadPreset(t *testing.T) {
	cfg := Config{
		Payee:       "shop@upi",
		FundPresets: []int64{200, -5},
	}
	if err := Normalize(&cfg); err == nil {
		t.Fatal("expected error for negative preset")
	}
}

func TestPlanTitleDefault(t *testing.T) {
	cfg := Config{
		Payee: "shop@upi",
		Plans: []Plan{{Duration: "14", Price: 900}},
	}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Plans[0].Title != "14 Days" {
		t.Fatalf("title = %q", cfg.Plans[0].Title)
	}
}
