package billing

import (
	"testing"

	"gradboard/internal/config"
	"gradboard/internal/types"
)

func testResolver() *PlanResolver {
	return NewPlanResolver(config.BillingConfig{
		PriceIDPro:     "price_pro_monthly",
		PriceIDPremium: "price_premium_monthly",
	})
}

func TestKnownPrice(t *testing.T) {
	r := testResolver()

	if !r.KnownPrice("price_pro_monthly") {
		t.Error("expected price_pro_monthly to be known")
	}
	if !r.KnownPrice("price_premium_monthly") {
		t.Error("expected price_premium_monthly to be known")
	}
	if r.KnownPrice("price_rotated_out") {
		t.Error("expected price_rotated_out to be unknown")
	}
}

func TestPriceForTier(t *testing.T) {
	r := testResolver()

	if id, ok := r.PriceForTier(types.TierPro); !ok || id != "price_pro_monthly" {
		t.Errorf("TierPro: got (%q, %v)", id, ok)
	}
	if id, ok := r.PriceForTier(types.TierPremium); !ok || id != "price_premium_monthly" {
		t.Errorf("TierPremium: got (%q, %v)", id, ok)
	}
	if _, ok := r.PriceForTier(types.TierFree); ok {
		t.Error("expected no price for the free tier")
	}
}

func TestTierFromPrice(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name       string
		priceID    string
		unitAmount int64
		expected   types.Tier
	}{
		{"configured pro price", "price_pro_monthly", 1500, types.TierPro},
		{"configured premium price", "price_premium_monthly", 2900, types.TierPremium},
		// The table wins even when the amount matches the legacy premium
		// amount.
		{"configured pro price at premium amount", "price_pro_monthly", 2900, types.TierPro},
		{"unknown price at premium amount", "price_old_premium", 2900, types.TierPremium},
		{"unknown price at other amount", "price_old_pro", 1500, types.TierPro},
		{"unknown price, zero amount", "price_mystery", 0, types.TierPro},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := r.TierFromPrice(tc.priceID, tc.unitAmount)
			if got != tc.expected {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}
