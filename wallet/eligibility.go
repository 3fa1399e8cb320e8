package wallet

import (
	"sort"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// ELIGIBILITY - Trailing-window application limits ("5/24")
// =============================================================================

// EligibilityRule limits how many cards may have been opened within a
// trailing window before an issuer declines new applications.
type EligibilityRule struct {
	WindowMonths int
	Limit        int
}

// FiveTwentyFour is the rule Chase applies: fewer than 5 new cards in the
// last 24 months.
var FiveTwentyFour = EligibilityRule{WindowMonths: 24, Limit: 5}

type Eligibility struct {
	Count            int
	Limit            int
	WindowMonths     int
	Eligible         bool
	NextEligibleDate *generic.Date // nil while eligible
}

// ComputeEligibility counts open dates on or after now minus the window.
//
// When the limit is reached, the next eligible date is the limit-th most
// recent open date plus the window plus one day: that is when it drops out
// and the count goes below the limit.
func ComputeEligibility(openDates []generic.Date, rule EligibilityRule, now generic.Date) Eligibility {
	cutoff := now.AddMonths(-rule.WindowMonths)

	count := 0
	for _, d := range openDates {
		if d.AfterOrEqual(cutoff) {
			count++
		}
	}

	result := Eligibility{
		Count:        count,
		Limit:        rule.Limit,
		WindowMonths: rule.WindowMonths,
		Eligible:     count < rule.Limit,
	}
	if result.Eligible || rule.Limit < 1 || len(openDates) < rule.Limit {
		return result
	}

	sorted := make([]generic.Date, len(openDates))
	copy(sorted, openDates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	next := sorted[rule.Limit-1].AddMonths(rule.WindowMonths).AddDays(1)
	result.NextEligibleDate = &next
	return result
}

// WalletEligibility applies a rule to every active holding's open date.
func WalletEligibility(holdings []Holding, rule EligibilityRule, now generic.Date) Eligibility {
	var active []Holding
	for _, h := range holdings {
		if h.IsActive() {
			active = append(active, h)
		}
	}
	return ComputeEligibility(OpenDates(active), rule, now)
}
