package wallet

import (
	"sort"
	"strings"
	"unicode"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// CARD SEARCH - Fuzzy containment matching, filtering and sorting
// =============================================================================

// Normalize lowercases s and drops everything that is not a letter or digit,
// so "Amex Gold®" and "amex-gold" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether either normalized string contains the other. An
// empty query matches everything; an empty candidate matches nothing else.
func Matches(query, candidate string) bool {
	q := Normalize(query)
	if q == "" {
		return true
	}
	c := Normalize(candidate)
	if c == "" {
		return false
	}
	return strings.Contains(c, q) || strings.Contains(q, c)
}

type CardFilter struct {
	Query    string // matched against name, issuer and categories
	Issuer   string
	Category string
	MaxFee   *generic.Money // inclusive
}

// Accepts reports whether a card passes every set criterion.
func (f CardFilter) Accepts(c Card) bool {
	if f.Issuer != "" && !Matches(f.Issuer, c.Issuer) {
		return false
	}
	if f.Category != "" && !matchesAny(f.Category, c.Categories) {
		return false
	}
	if f.MaxFee != nil && c.AnnualFee.GreaterThan(*f.MaxFee) {
		return false
	}
	if f.Query != "" {
		if !Matches(f.Query, c.Name) && !Matches(f.Query, c.Issuer) && !matchesAny(f.Query, c.Categories) {
			return false
		}
	}
	return true
}

func matchesAny(query string, candidates []string) bool {
	for _, c := range candidates {
		if Matches(query, c) {
			return true
		}
	}
	return false
}

// FilterCards returns the cards the filter accepts, preserving order.
func FilterCards(cards []Card, f CardFilter) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if f.Accepts(c) {
			out = append(out, c)
		}
	}
	return out
}

type SortKey string

const (
	SortByName  SortKey = "name"
	SortByFee   SortKey = "fee"
	SortByValue SortKey = "value" // total nominal benefit value, highest first
)

// SortCards sorts in place. Ties break on name so output is stable.
func SortCards(cards []Card, by SortKey) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch by {
		case SortByFee:
			if !a.AnnualFee.Equal(b.AnnualFee) {
				return a.AnnualFee.LessThan(b.AnnualFee)
			}
		case SortByValue:
			av, bv := a.TotalBenefitValue(), b.TotalBenefitValue()
			if !av.Equal(bv) {
				return av.GreaterThan(bv)
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
