package wallet

import (
	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// ROLLUP - Dashboard totals across the whole wallet
// =============================================================================
//
// All functions are O(holdings × benefits) and read-only. Holdings whose
// card is missing from the catalog contribute nothing.

// TotalCreditsUsed sums usage in the given year for credit and perk
// benefits with a positive nominal value.
func TotalCreditsUsed(holdings []Holding, catalog *Catalog, year int) generic.Money {
	total := generic.Zero
	for _, h := range holdings {
		card, ok := catalog.Card(h.CardID)
		if !ok {
			continue
		}
		for _, b := range card.Benefits {
			if !b.Kind.CountsAsCredit() || !b.Value.IsPositive() {
				continue
			}
			total = total.Add(h.Usage(b.Index).UsedInYear(year))
		}
	}
	return total
}

// TotalAnnualFees sums the catalog annual fee of every held card.
func TotalAnnualFees(holdings []Holding, catalog *Catalog) generic.Money {
	total := generic.Zero
	for _, h := range holdings {
		if card, ok := catalog.Card(h.CardID); ok {
			total = total.Add(card.AnnualFee)
		}
	}
	return total
}

// TotalYtdPotential sums AvailablePotential over every benefit the user has
// not ignored.
func TotalYtdPotential(holdings []Holding, catalog *Catalog, now generic.Date) generic.Money {
	total := generic.Zero
	for _, h := range holdings {
		card, ok := catalog.Card(h.CardID)
		if !ok {
			continue
		}
		for _, b := range card.Benefits {
			if h.Usage(b.Index).IsIgnored {
				continue
			}
			total = total.Add(AvailablePotential(b, h.AnniversaryDate, now))
		}
	}
	return total
}

// NetPerformance is credits used minus annual fees.
func NetPerformance(holdings []Holding, catalog *Catalog, now generic.Date) generic.Money {
	return TotalCreditsUsed(holdings, catalog, now.Year()).Sub(TotalAnnualFees(holdings, catalog))
}

// Summary is the dashboard header.
type Summary struct {
	AsOf           generic.Date
	CardCount      int
	CreditsUsed    generic.Money
	AnnualFees     generic.Money
	YtdPotential   generic.Money
	NetPerformance generic.Money
}

// Summarize computes every total in one pass over the active holdings.
func Summarize(holdings []Holding, catalog *Catalog, now generic.Date) Summary {
	var active []Holding
	for _, h := range holdings {
		if h.IsActive() {
			active = append(active, h)
		}
	}

	used := TotalCreditsUsed(active, catalog, now.Year())
	fees := TotalAnnualFees(active, catalog)
	return Summary{
		AsOf:           now,
		CardCount:      len(active),
		CreditsUsed:    used,
		AnnualFees:     fees,
		YtdPotential:   TotalYtdPotential(active, catalog, now),
		NetPerformance: used.Sub(fees),
	}
}
