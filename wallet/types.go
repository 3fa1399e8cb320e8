/*
Package wallet implements the card-benefit rules on top of the generic engine.

PURPOSE:
  A user's wallet is a set of held cards. Each card carries a catalog of
  recurring benefits (a $10 monthly dining credit, a $300 annual travel
  credit, ...). This package answers, for that wallet:
  - How much could still be obtained this year? (potential.go)
  - How much has been used, per period? (usage.go, ledger.go)
  - Is the user under an issuer's application limit? (eligibility.go)
  - What are the dashboard totals? (rollup.go)

KEY CONCEPTS:
  Catalog:      Static card/benefit definitions owned by the backend
  Holding:      One held card with its anniversary date and usage
  UsageRecord:  Used amount and status for one (card, benefit, period)
  State:        Confirmed snapshot + pending optimistic changes
  UsageLedger:  Validates transitions and commits them via a Committer

BENEFIT KINDS:
  credit, perk:          count toward "credits used"
  bonus, protection:     excluded from potential value
  multiplier, cashback:  earn rates, carried for display

SEE ALSO:
  - generic/period.go: Period generation
  - document.go: Backend document normalization
  - factory/catalog.go: Catalog parsing
*/
package wallet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// BENEFIT KIND
// =============================================================================

type BenefitKind string

const (
	KindCredit     BenefitKind = "credit"
	KindPerk       BenefitKind = "perk"
	KindBonus      BenefitKind = "bonus"
	KindProtection BenefitKind = "protection"
	KindMultiplier BenefitKind = "multiplier"
	KindCashback   BenefitKind = "cashback"
)

// ParseBenefitKind accepts any casing. Blank means credit.
func ParseBenefitKind(s string) (BenefitKind, error) {
	switch k := BenefitKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindCredit, nil
	case KindCredit, KindPerk, KindBonus, KindProtection, KindMultiplier, KindCashback:
		return k, nil
	default:
		return "", &generic.ValidationError{Field: "kind", Message: "unknown benefit kind", Value: s}
	}
}

// CountsAsCredit reports whether usage of this kind adds to "credits used".
func (k BenefitKind) CountsAsCredit() bool {
	return k == KindCredit || k == KindPerk
}

// =============================================================================
// CATALOG - Card and benefit definitions (immutable)
// =============================================================================

type Benefit struct {
	Index           generic.BenefitIndex
	Name            string
	Description     string
	Value           generic.Money
	Frequency       generic.Frequency
	Kind            BenefitKind
	PeriodOverrides map[generic.PeriodKey]generic.Money
}

// Entitlement returns the inputs period generation needs.
func (b Benefit) Entitlement() generic.Entitlement {
	return generic.Entitlement{Value: b.Value, Frequency: b.Frequency, Overrides: b.PeriodOverrides}
}

type Card struct {
	ID         generic.CardID
	Name       string
	Issuer     string
	AnnualFee  generic.Money
	Categories []string
	Benefits   []Benefit
}

// Benefit returns the benefit at index i.
func (c Card) Benefit(i generic.BenefitIndex) (Benefit, error) {
	if i < 0 || int(i) >= len(c.Benefits) {
		return Benefit{}, &generic.NotFoundError{Kind: "benefit", ID: fmt.Sprintf("%s/%d", c.ID, i)}
	}
	return c.Benefits[i], nil
}

// TotalBenefitValue sums nominal benefit values, for sorting and display.
func (c Card) TotalBenefitValue() generic.Money {
	total := generic.Zero
	for _, b := range c.Benefits {
		if b.Value.IsPositive() {
			total = total.Add(b.Value)
		}
	}
	return total
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	cards map[generic.CardID]Card
	ids   []generic.CardID
}

func NewCatalog(cards ...Card) *Catalog {
	c := &Catalog{cards: make(map[generic.CardID]Card, len(cards))}
	for _, card := range cards {
		for i := range card.Benefits {
			card.Benefits[i].Index = generic.BenefitIndex(i)
		}
		if _, dup := c.cards[card.ID]; !dup {
			c.ids = append(c.ids, card.ID)
		}
		c.cards[card.ID] = card
	}
	sort.Slice(c.ids, func(i, j int) bool { return c.ids[i] < c.ids[j] })
	return c
}

func (c *Catalog) Card(id generic.CardID) (Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

// Lookup resolves a card and one of its benefits.
func (c *Catalog) Lookup(id generic.CardID, i generic.BenefitIndex) (Card, Benefit, error) {
	card, ok := c.cards[id]
	if !ok {
		return Card{}, Benefit{}, &generic.NotFoundError{Kind: "card", ID: string(id)}
	}
	b, err := card.Benefit(i)
	if err != nil {
		return Card{}, Benefit{}, err
	}
	return card, b, nil
}

// Cards returns every card ordered by ID.
func (c *Catalog) Cards() []Card {
	out := make([]Card, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.cards[id])
	}
	return out
}

func (c *Catalog) Len() int { return len(c.ids) }

// =============================================================================
// HOLDING - A card in the user's wallet
// =============================================================================

const (
	HoldingActive  = "active"
	HoldingRemoved = "removed"
)

// BenefitUsage is the per-benefit slice of a holding. Ignore is a
// benefit-level choice; the per-period records mirror it.
type BenefitUsage struct {
	Periods   map[generic.PeriodKey]UsageRecord
	IsIgnored bool
}

// Record returns the usage for a period. Missing periods are empty.
func (u BenefitUsage) Record(key generic.PeriodKey) UsageRecord {
	r, ok := u.Periods[key]
	if !ok {
		r = UsageRecord{Status: StatusEmpty}
	}
	r.IsIgnored = u.IsIgnored
	return r
}

// UsedInYear sums usage across every period of the year.
func (u BenefitUsage) UsedInYear(year int) generic.Money {
	total := generic.Zero
	for key, r := range u.Periods {
		if key.Year() == year {
			total = total.Add(r.Used)
		}
	}
	return total
}

func (u BenefitUsage) clone() BenefitUsage {
	out := BenefitUsage{IsIgnored: u.IsIgnored, Periods: make(map[generic.PeriodKey]UsageRecord, len(u.Periods))}
	for k, v := range u.Periods {
		out.Periods[k] = v
	}
	return out
}

type Holding struct {
	CardID          generic.CardID
	Status          string
	AnniversaryDate *generic.Date
	Benefits        map[generic.BenefitIndex]BenefitUsage
}

// IsActive treats a blank status as active; older documents omit it.
func (h Holding) IsActive() bool {
	return h.Status == "" || h.Status == HoldingActive
}

// Usage returns the usage of one benefit (empty if never touched).
func (h Holding) Usage(i generic.BenefitIndex) BenefitUsage {
	return h.Benefits[i]
}

// Clone returns a deep copy; holdings handed to readers are never shared.
func (h Holding) Clone() Holding {
	out := h
	if h.AnniversaryDate != nil {
		d := *h.AnniversaryDate
		out.AnniversaryDate = &d
	}
	out.Benefits = make(map[generic.BenefitIndex]BenefitUsage, len(h.Benefits))
	for i, u := range h.Benefits {
		out.Benefits[i] = u.clone()
	}
	return out
}

// withRecord returns a copy with one period record replaced.
func (h Holding) withRecord(i generic.BenefitIndex, key generic.PeriodKey, r UsageRecord) Holding {
	out := h.Clone()
	u := out.Benefits[i]
	if u.Periods == nil {
		u.Periods = make(map[generic.PeriodKey]UsageRecord)
	}
	r.IsIgnored = false
	u.Periods[key] = r
	out.Benefits[i] = u
	return out
}

// withIgnored returns a copy with a benefit's ignore flag set.
func (h Holding) withIgnored(i generic.BenefitIndex, ignored bool) Holding {
	out := h.Clone()
	u := out.Benefits[i]
	u.IsIgnored = ignored
	out.Benefits[i] = u
	return out
}

// OpenDates returns the anniversary dates of every holding that has one.
func OpenDates(holdings []Holding) []generic.Date {
	var dates []generic.Date
	for _, h := range holdings {
		if h.AnniversaryDate != nil {
			dates = append(dates, *h.AnniversaryDate)
		}
	}
	return dates
}
