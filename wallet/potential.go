package wallet

import (
	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// POTENTIAL VALUE - What a benefit can yield over the current year
// =============================================================================

// DefaultExcludedKinds never contribute potential value: bonuses are one-off
// and protections have no dollar value until a claim.
var DefaultExcludedKinds = []BenefitKind{KindProtection, KindBonus}

// AvailablePotential returns the full-year obtainable value of a benefit,
// excluding DefaultExcludedKinds.
func AvailablePotential(b Benefit, anniversary *generic.Date, now generic.Date) generic.Money {
	return AvailablePotentialExcluding(b, anniversary, now, DefaultExcludedKinds)
}

// AvailablePotentialExcluding sums the maximum of every period of the year,
// whether or not it has started yet. Periods that ended before the card was
// opened cannot be obtained and are skipped. No rounding happens here.
func AvailablePotentialExcluding(b Benefit, anniversary *generic.Date, now generic.Date, exclude []BenefitKind) generic.Money {
	for _, k := range exclude {
		if b.Kind == k {
			return generic.Zero
		}
	}
	if !b.Value.IsPositive() {
		return generic.Zero
	}

	total := generic.Zero
	for _, p := range generic.GeneratePeriods(b.Entitlement(), anniversary, now) {
		if p.IsAvailable {
			total = total.Add(p.MaxValue)
		}
	}
	return total
}
