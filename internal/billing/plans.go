// Package billing holds the pricing knowledge of the platform: which
// provider price ids correspond to which entitlement tiers, and what each
// tier is allowed to do.
package billing

import (
	"gradboard/internal/config"
	"gradboard/internal/types"
)

// premiumUnitAmountCents is the legacy unit-amount fallback used only when a
// subscription carries a price id that is not in the configured lookup
// table (e.g., a price rotated out of config before the event arrived).
const premiumUnitAmountCents = 2900

// PlanResolver maps provider price ids to entitlement tiers. The table is
// built from configuration at startup; webhook handlers consult it instead
// of hard-coding amounts.
type PlanResolver struct {
	priceToTier map[string]types.Tier
	tierToPrice map[types.Tier]string
}

// NewPlanResolver builds the lookup table from the configured price ids.
func NewPlanResolver(cfg config.BillingConfig) *PlanResolver {
	priceToTier := map[string]types.Tier{
		cfg.PriceIDPro:     types.TierPro,
		cfg.PriceIDPremium: types.TierPremium,
	}
	tierToPrice := map[types.Tier]string{
		types.TierPro:     cfg.PriceIDPro,
		types.TierPremium: cfg.PriceIDPremium,
	}
	return &PlanResolver{
		priceToTier: priceToTier,
		tierToPrice: tierToPrice,
	}
}

// KnownPrice reports whether the price id sells one of our tiers.
func (r *PlanResolver) KnownPrice(priceID string) bool {
	_, ok := r.priceToTier[priceID]
	return ok
}

// PriceForTier returns the provider price id selling the given paid tier.
func (r *PlanResolver) PriceForTier(tier types.Tier) (string, bool) {
	id, ok := r.tierToPrice[tier]
	return id, ok
}

// TierFromPrice resolves a subscription's tier. The configured price-id
// table is authoritative; an unknown price id falls back to the unit-amount
// rule that predates the table.
func (r *PlanResolver) TierFromPrice(priceID string, unitAmountCents int64) types.Tier {
	if tier, ok := r.priceToTier[priceID]; ok {
		return tier
	}
	if unitAmountCents == premiumUnitAmountCents {
		return types.TierPremium
	}
	return types.TierPro
}
