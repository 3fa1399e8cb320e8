package wallet

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/card-wallet/generic"
)

// MatchPersonality names the spending category the wallet leans toward:
// the category carried by the most active cards, ties broken by name. The
// score is the share of active cards carrying it. A wallet with no
// categorized cards has no personality.
func MatchPersonality(holdings []Holding, catalog *Catalog) *generic.Personality {
	counts := make(map[string]int)
	cards := 0
	for _, h := range holdings {
		if !h.IsActive() {
			continue
		}
		card, ok := catalog.Card(h.CardID)
		if !ok {
			continue
		}
		cards++
		seen := make(map[string]bool, len(card.Categories))
		for _, c := range card.Categories {
			n := Normalize(c)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			counts[n]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	top := names[0]
	score, _ := decimal.NewFromInt(int64(counts[top])).
		DivRound(decimal.NewFromInt(int64(cards)), 2).
		Float64()
	return &generic.Personality{ID: top, MatchScore: score}
}
