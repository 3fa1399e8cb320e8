package wallet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func money(v float64) generic.Money { return generic.NewMoney(v) }

func date(y int, m time.Month, d int) generic.Date { return generic.NewDate(y, m, d) }

func datePtr(y int, m time.Month, d int) *generic.Date {
	dt := generic.NewDate(y, m, d)
	return &dt
}

// testCatalog:
//
//	gold/0  dining credit    $120 monthly    credit
//	gold/1  airline credit   $300 quarterly  credit
//	gold/2  purchase protect $0   annually   protection
//	gold/3  uber cash        $300 monthly    perk
//	gold/4  welcome bonus    $600 annually   bonus
//	sapphire/0 hotel credit  $50  annually   credit
//	sapphire/1 3x dining     $0   annually   multiplier
func testCatalog() *wallet.Catalog {
	return wallet.NewCatalog(
		wallet.Card{
			ID:         "gold",
			Name:       "Gold Card",
			Issuer:     "American Express",
			AnnualFee:  money(250),
			Categories: []string{"Dining", "Travel"},
			Benefits: []wallet.Benefit{
				{Name: "Dining Credit", Value: money(120), Frequency: generic.Monthly, Kind: wallet.KindCredit},
				{Name: "Airline Credit", Value: money(300), Frequency: generic.Quarterly, Kind: wallet.KindCredit},
				{Name: "Purchase Protection", Value: money(0), Frequency: generic.Annually, Kind: wallet.KindProtection},
				{Name: "Uber Cash", Value: money(300), Frequency: generic.Monthly, Kind: wallet.KindPerk},
				{Name: "Welcome Bonus", Value: money(600), Frequency: generic.Annually, Kind: wallet.KindBonus},
			},
		},
		wallet.Card{
			ID:         "sapphire",
			Name:       "Sapphire Preferred",
			Issuer:     "Chase",
			AnnualFee:  money(95),
			Categories: []string{"Travel"},
			Benefits: []wallet.Benefit{
				{Name: "Hotel Credit", Value: money(50), Frequency: generic.Annually, Kind: wallet.KindCredit},
				{Name: "3x Dining", Value: money(0), Frequency: generic.Annually, Kind: wallet.KindMultiplier},
			},
		},
	)
}

func holdingWith(cardID generic.CardID, anniversary *generic.Date, usage map[generic.BenefitIndex]map[generic.PeriodKey]float64) wallet.Holding {
	h := wallet.Holding{
		CardID:          cardID,
		Status:          wallet.HoldingActive,
		AnniversaryDate: anniversary,
		Benefits:        map[generic.BenefitIndex]wallet.BenefitUsage{},
	}
	for idx, periods := range usage {
		u := wallet.BenefitUsage{Periods: map[generic.PeriodKey]wallet.UsageRecord{}}
		for key, used := range periods {
			u.Periods[key] = wallet.UsageRecord{Used: money(used)}
		}
		h.Benefits[idx] = u
	}
	return h
}

// =============================================================================
// USAGE RECORD TESTS
// =============================================================================

func TestUsageRecord_LogUsage_StatusFollowsAmount(t *testing.T) {
	// GIVEN: A period worth $25
	// WHEN: Logging various amounts
	// THEN: 0 is empty, below max is partial, at or above max is full

	max := money(25)
	cases := []struct {
		amount float64
		want   wallet.UsageStatus
	}{
		{0, wallet.StatusEmpty},
		{0.01, wallet.StatusPartial},
		{24.99, wallet.StatusPartial},
		{25, wallet.StatusFull},
		{40, wallet.StatusFull},
	}
	for _, tc := range cases {
		r, err := wallet.UsageRecord{}.LogUsage(money(tc.amount), max)
		require.NoError(t, err)
		assert.Equal(t, tc.want, r.Status, "amount %v", tc.amount)
		assert.True(t, money(tc.amount).Equal(r.Used))
	}
}

func TestUsageRecord_LogUsage_OverwritesInsteadOfAdding(t *testing.T) {
	// GIVEN: A record with $10 used
	// WHEN: Logging $12 as a correction
	// THEN: Used is $12, not $22

	r, err := wallet.UsageRecord{}.LogUsage(money(10), money(25))
	require.NoError(t, err)
	r, err = r.LogUsage(money(12), money(25))
	require.NoError(t, err)

	assert.True(t, money(12).Equal(r.Used))
	assert.Equal(t, wallet.StatusPartial, r.Status)
}

func TestUsageRecord_LogUsage_NegativeRejected(t *testing.T) {
	_, err := wallet.UsageRecord{}.LogUsage(money(-1), money(25))

	var valErr *generic.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "amount", valErr.Field)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestUsageRecord_MarkFull_Idempotent(t *testing.T) {
	start := wallet.UsageRecord{Used: money(3), Status: wallet.StatusPartial}

	once := start.MarkFull(money(25))
	twice := once.MarkFull(money(25))

	assert.Equal(t, once, twice)
	assert.Equal(t, wallet.StatusFull, twice.Status)
	assert.True(t, money(25).Equal(twice.Used))
}

func TestUsageRecord_Reset_KeepsIgnore(t *testing.T) {
	r := wallet.UsageRecord{Used: money(25), Status: wallet.StatusFull, IsIgnored: true}.Reset()

	assert.True(t, r.Used.IsZero())
	assert.Equal(t, wallet.StatusEmpty, r.Status)
	assert.True(t, r.IsIgnored)
}

func TestUsageRecord_Remaining_NeverNegative(t *testing.T) {
	assert.True(t, money(15).Equal(wallet.UsageRecord{Used: money(10)}.Remaining(money(25))))
	assert.True(t, wallet.UsageRecord{Used: money(40)}.Remaining(money(25)).IsZero())
}

// =============================================================================
// POTENTIAL VALUE TESTS
// =============================================================================

func TestAvailablePotential_ExcludedKindsAlwaysZero(t *testing.T) {
	// GIVEN: Protection and bonus benefits, even with a positive value
	// WHEN: Computing potential with and without an anniversary
	// THEN: Always zero

	now := date(2025, time.June, 1)
	for _, kind := range []wallet.BenefitKind{wallet.KindProtection, wallet.KindBonus} {
		b := wallet.Benefit{Value: money(500), Frequency: generic.Monthly, Kind: kind}
		assert.True(t, wallet.AvailablePotential(b, nil, now).IsZero(), kind)
		assert.True(t, wallet.AvailablePotential(b, datePtr(2020, time.January, 1), now).IsZero(), kind)
	}
}

func TestAvailablePotential_NonPositiveValueIsZero(t *testing.T) {
	b := wallet.Benefit{Value: money(0), Frequency: generic.Monthly, Kind: wallet.KindCredit}
	assert.True(t, wallet.AvailablePotential(b, nil, date(2025, time.June, 1)).IsZero())

	b.Value = money(-10)
	assert.True(t, wallet.AvailablePotential(b, nil, date(2025, time.June, 1)).IsZero())
}

func TestAvailablePotential_WholeYearRegardlessOfCurrent(t *testing.T) {
	// GIVEN: A $300 quarterly credit on a card held for years
	// WHEN: It is only February
	// THEN: Potential is the full $300, not just Q1's $75

	b := wallet.Benefit{Value: money(300), Frequency: generic.Quarterly, Kind: wallet.KindCredit}
	got := wallet.AvailablePotential(b, datePtr(2019, time.March, 3), date(2025, time.February, 10))

	assert.True(t, money(300).Equal(got), "got %s", got)
}

func TestAvailablePotential_SkipsPeriodsBeforeCardOpened(t *testing.T) {
	// GIVEN: A $120 monthly credit on a card opened May 20 this year
	// WHEN: Computing potential
	// THEN: January through April are not obtainable: 8 x $10

	b := wallet.Benefit{Value: money(120), Frequency: generic.Monthly, Kind: wallet.KindCredit}
	got := wallet.AvailablePotential(b, datePtr(2025, time.May, 20), date(2025, time.June, 1))

	assert.True(t, money(80).Equal(got), "got %s", got)
}

func TestAvailablePotential_UsesOverrides(t *testing.T) {
	b := wallet.Benefit{
		Value:           money(120),
		Frequency:       generic.Monthly,
		Kind:            wallet.KindCredit,
		PeriodOverrides: map[generic.PeriodKey]generic.Money{"2025_12": money(35)},
	}
	got := wallet.AvailablePotential(b, nil, date(2025, time.March, 1))

	assert.True(t, money(145).Equal(got), "11 x 10 + 35, got %s", got)
}

// =============================================================================
// ELIGIBILITY TESTS
// =============================================================================

func TestComputeEligibility_FiveRecentCards_NotEligible(t *testing.T) {
	// GIVEN: 5 cards opened within the last 23 months
	// WHEN: Applying 5/24 on 2025-06-20
	// THEN: Not eligible; next date is the 5th newest + 24 months + 1 day

	now := date(2025, time.June, 20)
	opened := []generic.Date{
		date(2024, time.November, 1),
		date(2023, time.August, 1),
		date(2025, time.March, 1),
		date(2024, time.June, 15),
		date(2024, time.January, 10),
	}

	got := wallet.ComputeEligibility(opened, wallet.FiveTwentyFour, now)

	assert.Equal(t, 5, got.Count)
	assert.False(t, got.Eligible)
	require.NotNil(t, got.NextEligibleDate)
	assert.Equal(t, "2025-08-02", got.NextEligibleDate.String())
}

func TestComputeEligibility_OldCardsDoNotCount(t *testing.T) {
	now := date(2025, time.June, 20)
	opened := []generic.Date{
		date(2020, time.January, 1),
		date(2021, time.January, 1),
		date(2022, time.January, 1),
		date(2023, time.June, 19), // one day outside the window
		date(2024, time.May, 1),
	}

	got := wallet.ComputeEligibility(opened, wallet.FiveTwentyFour, now)

	assert.Equal(t, 1, got.Count)
	assert.True(t, got.Eligible)
	assert.Nil(t, got.NextEligibleDate)
}

func TestComputeEligibility_WindowStartIsInclusive(t *testing.T) {
	now := date(2025, time.June, 20)
	got := wallet.ComputeEligibility([]generic.Date{date(2023, time.June, 20)}, wallet.EligibilityRule{WindowMonths: 24, Limit: 1}, now)

	assert.Equal(t, 1, got.Count)
	assert.False(t, got.Eligible)
	require.NotNil(t, got.NextEligibleDate)
	assert.Equal(t, "2025-06-21", got.NextEligibleDate.String())
}

func TestComputeEligibility_NoDates(t *testing.T) {
	got := wallet.ComputeEligibility(nil, wallet.FiveTwentyFour, date(2025, time.June, 20))

	assert.Equal(t, 0, got.Count)
	assert.True(t, got.Eligible)
	assert.Nil(t, got.NextEligibleDate)
}

func TestComputeEligibility_ZeroLimitDoesNotIndexOutOfRange(t *testing.T) {
	got := wallet.ComputeEligibility(nil, wallet.EligibilityRule{WindowMonths: 24, Limit: 0}, date(2025, time.June, 20))

	assert.False(t, got.Eligible)
	assert.Nil(t, got.NextEligibleDate)
}

func TestWalletEligibility_IgnoresRemovedAndUndated(t *testing.T) {
	now := date(2025, time.June, 20)
	holdings := []wallet.Holding{
		{CardID: "a", AnniversaryDate: datePtr(2025, time.January, 1)},
		{CardID: "b", Status: wallet.HoldingRemoved, AnniversaryDate: datePtr(2025, time.February, 1)},
		{CardID: "c"},
	}

	got := wallet.WalletEligibility(holdings, wallet.FiveTwentyFour, now)

	assert.Equal(t, 1, got.Count)
	assert.True(t, got.Eligible)
}

// =============================================================================
// ROLLUP TESTS
// =============================================================================

func TestRollup_QuarterlyScenario(t *testing.T) {
	// GIVEN: A $300 quarterly credit, today in Q2 2025
	// WHEN: $75 is logged on Q2
	// THEN: Q2 is full and credits used includes $75 because the kind is credit

	catalog := testCatalog()
	now := date(2025, time.May, 10)
	card, _ := catalog.Card("gold")
	b := card.Benefits[1]

	periods := generic.GeneratePeriods(b.Entitlement(), nil, now)
	require.Len(t, periods, 4)
	for _, p := range periods {
		assert.True(t, money(75).Equal(p.MaxValue), p.Key)
	}

	q2, ok := generic.FindPeriod(periods, "2025_Q2")
	require.True(t, ok)
	assert.True(t, q2.IsCurrent)
	r, err := wallet.UsageRecord{}.LogUsage(money(75), q2.MaxValue)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusFull, r.Status)

	h := holdingWith("gold", nil, map[generic.BenefitIndex]map[generic.PeriodKey]float64{1: {"2025_Q2": 75}})
	assert.True(t, money(75).Equal(wallet.TotalCreditsUsed([]wallet.Holding{h}, catalog, 2025)))
}

func TestRollup_CreditsUsed_OnlyCreditAndPerkWithValue(t *testing.T) {
	// GIVEN: Usage recorded against a credit, a perk, a protection and a bonus
	// WHEN: Summing credits used
	// THEN: Only credit and perk usage counts

	catalog := testCatalog()
	h := holdingWith("gold", nil, map[generic.BenefitIndex]map[generic.PeriodKey]float64{
		0: {"2025_01": 10, "2025_02": 5},
		2: {"2025": 200},
		3: {"2025_03": 25},
		4: {"2025": 600},
	})

	got := wallet.TotalCreditsUsed([]wallet.Holding{h}, catalog, 2025)
	assert.True(t, money(40).Equal(got), "got %s", got)
}

func TestRollup_CreditsUsed_FiltersByYear(t *testing.T) {
	catalog := testCatalog()
	h := holdingWith("gold", nil, map[generic.BenefitIndex]map[generic.PeriodKey]float64{
		0: {"2024_12": 10, "2025_01": 10},
	})

	assert.True(t, money(10).Equal(wallet.TotalCreditsUsed([]wallet.Holding{h}, catalog, 2025)))
	assert.True(t, money(10).Equal(wallet.TotalCreditsUsed([]wallet.Holding{h}, catalog, 2024)))
}

func TestRollup_AnnualFees_MissingCatalogEntryCountsZero(t *testing.T) {
	catalog := testCatalog()
	holdings := []wallet.Holding{{CardID: "gold"}, {CardID: "sapphire"}, {CardID: "retired-card"}}

	assert.True(t, money(345).Equal(wallet.TotalAnnualFees(holdings, catalog)))
}

func TestRollup_YtdPotential_SkipsIgnoredBenefits(t *testing.T) {
	catalog := testCatalog()
	now := date(2025, time.March, 1)
	h := holdingWith("gold", datePtr(2020, time.January, 1), nil)
	h.Benefits[3] = wallet.BenefitUsage{IsIgnored: true}

	// dining 120 + airline 300; protection and bonus excluded; uber ignored
	got := wallet.TotalYtdPotential([]wallet.Holding{h}, catalog, now)
	assert.True(t, money(420).Equal(got), "got %s", got)
}

func TestSummarize_NetPerformance(t *testing.T) {
	// GIVEN: Gold ($250 fee) with $40 of credits used and Sapphire ($95 fee)
	// WHEN: Summarizing
	// THEN: Net performance is 40 - 345

	catalog := testCatalog()
	now := date(2025, time.April, 1)
	holdings := []wallet.Holding{
		holdingWith("gold", nil, map[generic.BenefitIndex]map[generic.PeriodKey]float64{0: {"2025_01": 10}, 1: {"2025_Q1": 30}}),
		holdingWith("sapphire", nil, nil),
		{CardID: "old", Status: wallet.HoldingRemoved},
	}

	s := wallet.Summarize(holdings, catalog, now)

	assert.Equal(t, 2, s.CardCount)
	assert.True(t, money(40).Equal(s.CreditsUsed))
	assert.True(t, money(345).Equal(s.AnnualFees))
	assert.True(t, money(-305).Equal(s.NetPerformance))
	assert.True(t, s.NetPerformance.Equal(wallet.NetPerformance(holdings[:2], catalog, now)))
	assert.True(t, money(770).Equal(s.YtdPotential), "120+300+300+50, got %s", s.YtdPotential)
}

// =============================================================================
// SEARCH TESTS
// =============================================================================

func TestMatches_NormalizesAndContainsBothWays(t *testing.T) {
	assert.True(t, wallet.Matches("amex", "AmEx Gold®"))
	assert.True(t, wallet.Matches("American-Express Gold Card", "american express"))
	assert.True(t, wallet.Matches("", "anything"))
	assert.False(t, wallet.Matches("chase", ""))
	assert.False(t, wallet.Matches("chase", "citi"))
}

func TestFilterCards(t *testing.T) {
	cards := testCatalog().Cards()
	fee := money(100)

	assert.Len(t, wallet.FilterCards(cards, wallet.CardFilter{Query: "travel"}), 2)
	assert.Len(t, wallet.FilterCards(cards, wallet.CardFilter{Category: "dining"}), 1)
	assert.Len(t, wallet.FilterCards(cards, wallet.CardFilter{Issuer: "chase"}), 1)

	cheap := wallet.FilterCards(cards, wallet.CardFilter{MaxFee: &fee})
	require.Len(t, cheap, 1)
	assert.Equal(t, generic.CardID("sapphire"), cheap[0].ID)
}

func TestSortCards(t *testing.T) {
	cards := testCatalog().Cards()

	wallet.SortCards(cards, wallet.SortByFee)
	assert.Equal(t, generic.CardID("sapphire"), cards[0].ID)

	wallet.SortCards(cards, wallet.SortByValue)
	assert.Equal(t, generic.CardID("gold"), cards[0].ID)

	wallet.SortCards(cards, wallet.SortByName)
	assert.Equal(t, "Gold Card", cards[0].Name)
}

// =============================================================================
// VIEW TESTS
// =============================================================================

func TestViewCard_MergesUsageAndFeeDate(t *testing.T) {
	catalog := testCatalog()
	card, _ := catalog.Card("gold")
	now := date(2025, time.May, 10)
	h := holdingWith("gold", datePtr(2022, time.September, 15), map[generic.BenefitIndex]map[generic.PeriodKey]float64{
		0: {"2025_05": 4},
	})

	v := wallet.ViewCard(h, card, now)

	require.NotNil(t, v.NextFeeDate)
	assert.Equal(t, "2025-09-15", v.NextFeeDate.String())
	require.Len(t, v.Benefits, 5)

	dining := v.Benefits[0]
	require.NotNil(t, dining.Current)
	assert.Equal(t, generic.PeriodKey("2025_05"), dining.Current.Key)
	assert.Equal(t, wallet.StatusPartial, dining.Current.Status)
	assert.True(t, money(6).Equal(dining.Current.Remaining))
	assert.True(t, money(4).Equal(v.CreditsUsed))
}
