package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/store/sqlite"
	"github.com/warp/card-wallet/wallet"
)

const alice generic.UserID = "alice"

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func key(card string, benefit int, period string) generic.UsageKey {
	return generic.UsageKey{CardID: generic.CardID(card), BenefitIndex: generic.BenefitIndex(benefit), PeriodKey: generic.PeriodKey(period)}
}

func statusAgainst(max float64) func(generic.Money) wallet.UsageStatus {
	return func(used generic.Money) wallet.UsageStatus {
		return wallet.StatusFor(used, generic.NewMoney(max))
	}
}

func TestStore_Cards(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Saving the same card twice
	// THEN: The definition is replaced and the version bumped

	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCard(ctx, sqlite.CardRecord{ID: "gold", Name: "Gold", Issuer: "Amex", ConfigJSON: `{"id":"gold"}`}))
	require.NoError(t, s.SaveCard(ctx, sqlite.CardRecord{ID: "gold", Name: "Gold Card", Issuer: "Amex", ConfigJSON: `{"id":"gold","v":2}`}))
	require.NoError(t, s.SaveCard(ctx, sqlite.CardRecord{ID: "csp", Name: "Sapphire", Issuer: "Chase", ConfigJSON: `{}`}))

	card, err := s.GetCard(ctx, "gold")
	require.NoError(t, err)
	assert.Equal(t, "Gold Card", card.Name)
	assert.Equal(t, 2, card.Version)
	assert.False(t, card.CreatedAt.IsZero())

	cards, err := s.ListCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "csp", cards[0].ID)

	_, err = s.GetCard(ctx, "nope")
	assert.True(t, generic.IsNotFound(err))
}

func TestStore_HoldingLifecycle(t *testing.T) {
	// GIVEN: A card added with an anniversary date
	// WHEN: Removing it and adding it back
	// THEN: Removal drops usage; re-adding reactivates with a clean slate

	s := newStore(t)
	ctx := context.Background()
	anniv := generic.NewDate(2024, time.March, 1)

	require.NoError(t, s.AddHolding(ctx, alice, "gold", &anniv))
	_, err := s.SaveUsage(ctx, alice, key("gold", 0, "2025_05"), sqlite.UsageWrite{Amount: generic.NewMoney(4), StatusOf: statusAgainst(10)})
	require.NoError(t, err)
	require.NoError(t, s.SetIgnored(ctx, alice, "gold", 1, true))

	h, err := s.GetHolding(ctx, alice, "gold")
	require.NoError(t, err)
	require.NotNil(t, h.AnniversaryDate)
	assert.Equal(t, "2024-03-01", h.AnniversaryDate.String())
	assert.Equal(t, wallet.StatusPartial, h.Benefits[0].Periods["2025_05"].Status)
	assert.True(t, h.Benefits[1].IsIgnored)

	require.NoError(t, s.RemoveHolding(ctx, alice, "gold"))
	_, err = s.GetHolding(ctx, alice, "gold")
	assert.True(t, generic.IsNotFound(err))

	all, err := s.ListHoldings(ctx, alice, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, wallet.HoldingRemoved, all[0].Status)
	assert.Empty(t, all[0].Benefits)

	require.NoError(t, s.AddHolding(ctx, alice, "gold", nil))
	h, err = s.GetHolding(ctx, alice, "gold")
	require.NoError(t, err)
	assert.True(t, h.IsActive())
	assert.Nil(t, h.AnniversaryDate)
	assert.Empty(t, h.Benefits)

	assert.True(t, generic.IsNotFound(s.RemoveHolding(ctx, alice, "csp")))
}

func TestStore_SaveUsage(t *testing.T) {
	// GIVEN: A held card
	// WHEN: Overwriting, then incrementing a period's usage
	// THEN: Overwrite replaces; increment adds; status follows the callback

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddHolding(ctx, alice, "gold", nil))
	k := key("gold", 0, "2025_05")

	rec, err := s.SaveUsage(ctx, alice, k, sqlite.UsageWrite{Amount: generic.NewMoney(3.5), StatusOf: statusAgainst(10)})
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusPartial, rec.Status)

	rec, err = s.SaveUsage(ctx, alice, k, sqlite.UsageWrite{Amount: generic.NewMoney(6.5), Increment: true, StatusOf: statusAgainst(10)})
	require.NoError(t, err)
	assert.True(t, generic.NewMoney(10).Equal(rec.Used))
	assert.Equal(t, wallet.StatusFull, rec.Status)

	rec, err = s.SaveUsage(ctx, alice, k, sqlite.UsageWrite{Amount: generic.Zero, StatusOf: statusAgainst(10)})
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusEmpty, rec.Status)

	h, err := s.GetHolding(ctx, alice, "gold")
	require.NoError(t, err)
	assert.True(t, h.Benefits[0].Periods["2025_05"].Used.IsZero())
}

func TestStore_WritesRequireActiveHolding(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.SaveUsage(ctx, alice, key("gold", 0, "2025_05"), sqlite.UsageWrite{Amount: generic.NewMoney(1)})
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(s.SetIgnored(ctx, alice, "gold", 0, true)))
	assert.True(t, generic.IsNotFound(s.UpdateAnniversary(ctx, alice, "gold", generic.NewDate(2024, time.May, 1))))
}

func TestStore_UsersAreIsolated(t *testing.T) {
	// GIVEN: Two users holding the same card
	// WHEN: One logs usage and then resets their wallet
	// THEN: The other's data is untouched

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddHolding(ctx, alice, "gold", nil))
	require.NoError(t, s.AddHolding(ctx, "bob", "gold", nil))

	_, err := s.SaveUsage(ctx, "bob", key("gold", 0, "2025_05"), sqlite.UsageWrite{Amount: generic.NewMoney(2), StatusOf: statusAgainst(10)})
	require.NoError(t, err)

	h, err := s.GetHolding(ctx, alice, "gold")
	require.NoError(t, err)
	assert.Empty(t, h.Benefits)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.UserID{"alice", "bob"}, users)

	require.NoError(t, s.ResetUser(ctx, "bob"))
	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.UserID{"alice"}, users)

	require.NoError(t, s.Reset(ctx, false))
	holdings, err := s.ListHoldings(ctx, alice, true)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestStore_UpdateAnniversary(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddHolding(ctx, alice, "gold", nil))

	require.NoError(t, s.UpdateAnniversary(ctx, alice, "gold", generic.NewDate(2023, time.August, 31)))

	h, err := s.GetHolding(ctx, alice, "gold")
	require.NoError(t, err)
	require.NotNil(t, h.AnniversaryDate)
	assert.Equal(t, "2023-08-31", h.AnniversaryDate.String())
}
