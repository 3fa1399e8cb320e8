package wallet

import (
	"github.com/warp/card-wallet/generic"
)

// PeriodView is a generated period merged with its usage record.
type PeriodView struct {
	generic.Period
	Used      generic.Money
	Status    UsageStatus
	Remaining generic.Money
	IsIgnored bool
}

// BenefitView is what a benefit row renders.
type BenefitView struct {
	Benefit      Benefit
	IsIgnored    bool
	Potential    generic.Money
	UsedThisYear generic.Money
	Current      *PeriodView
	Periods      []PeriodView
}

// CardView is one held card with its fee timing and benefits.
type CardView struct {
	Card           Card
	Holding        Holding
	NextFeeDate    *generic.Date
	Benefits       []BenefitView
	CreditsUsed    generic.Money
	PotentialValue generic.Money
}

// PeriodsFor merges generated periods with the holding's usage.
func PeriodsFor(h Holding, b Benefit, now generic.Date) []PeriodView {
	usage := h.Usage(b.Index)
	periods := generic.GeneratePeriods(b.Entitlement(), h.AnniversaryDate, now)

	views := make([]PeriodView, len(periods))
	for i, p := range periods {
		r := usage.Record(p.Key)
		status := r.Status
		if status == "" {
			status = StatusFor(r.Used, p.MaxValue)
		}
		views[i] = PeriodView{
			Period:    p,
			Used:      r.Used,
			Status:    status,
			Remaining: r.Remaining(p.MaxValue),
			IsIgnored: usage.IsIgnored,
		}
	}
	return views
}

// ViewBenefit builds the full view of one benefit.
func ViewBenefit(h Holding, b Benefit, now generic.Date) BenefitView {
	usage := h.Usage(b.Index)
	v := BenefitView{
		Benefit:      b,
		IsIgnored:    usage.IsIgnored,
		UsedThisYear: usage.UsedInYear(now.Year()),
		Periods:      PeriodsFor(h, b, now),
	}
	if !usage.IsIgnored {
		v.Potential = AvailablePotential(b, h.AnniversaryDate, now)
	}
	for i := range v.Periods {
		if v.Periods[i].IsCurrent {
			cur := v.Periods[i]
			v.Current = &cur
			break
		}
	}
	return v
}

// ViewCard builds the view of one holding against its catalog card.
func ViewCard(h Holding, card Card, now generic.Date) CardView {
	v := CardView{Card: card, Holding: h, CreditsUsed: generic.Zero, PotentialValue: generic.Zero}
	if h.AnniversaryDate != nil {
		next := generic.NextAnniversary(*h.AnniversaryDate, now)
		v.NextFeeDate = &next
	}
	for _, b := range card.Benefits {
		bv := ViewBenefit(h, b, now)
		v.Benefits = append(v.Benefits, bv)
		if b.Kind.CountsAsCredit() && b.Value.IsPositive() {
			v.CreditsUsed = v.CreditsUsed.Add(bv.UsedThisYear)
		}
		v.PotentialValue = v.PotentialValue.Add(bv.Potential)
	}
	return v
}
