package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/generic"
)

func usedHolding(id generic.CardID, key generic.PeriodKey, used float64) Holding {
	return Holding{
		CardID: id,
		Benefits: map[generic.BenefitIndex]BenefitUsage{
			0: {Periods: map[generic.PeriodKey]UsageRecord{key: {Used: generic.NewMoney(used), Status: StatusPartial}}},
		},
	}
}

func TestState_PendingOverlaysConfirmed(t *testing.T) {
	// GIVEN: $5 confirmed
	// WHEN: $8 is staged
	// THEN: Holding shows $8, Confirmed still shows $5

	s := NewState(3)
	s.ApplySnapshot([]Holding{usedHolding("gold", "2025_05", 5)})
	pk := pendingKey{kind: pendingUsage, key: generic.UsageKey{CardID: "gold", PeriodKey: "2025_05"}}

	s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(8), Status: StatusPartial}})

	h, _ := s.Holding("gold")
	assert.True(t, generic.NewMoney(8).Equal(h.Usage(0).Record("2025_05").Used))
	c, _ := s.Confirmed("gold")
	assert.True(t, generic.NewMoney(5).Equal(c.Usage(0).Record("2025_05").Used))
}

func TestState_RollbackRevertsToConfirmed(t *testing.T) {
	s := NewState(3)
	s.ApplySnapshot([]Holding{usedHolding("gold", "2025_05", 5)})
	pk := pendingKey{kind: pendingUsage, key: generic.UsageKey{CardID: "gold", PeriodKey: "2025_05"}}

	token := s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(8)}})
	s.rollback(pk, token)

	h, _ := s.Holding("gold")
	assert.True(t, generic.NewMoney(5).Equal(h.Usage(0).Record("2025_05").Used))
	assert.Equal(t, 0, s.PendingCount())
}

func TestState_StaleTokenDoesNotTouchNewerStage(t *testing.T) {
	// GIVEN: Two stages for the same key
	// WHEN: The first one's token is rolled back
	// THEN: The second (newer) pending value survives

	s := NewState(3)
	s.ApplySnapshot([]Holding{usedHolding("gold", "2025_05", 5)})
	pk := pendingKey{kind: pendingUsage, key: generic.UsageKey{CardID: "gold", PeriodKey: "2025_05"}}

	old := s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(6)}})
	s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(7)}})
	s.rollback(pk, old)
	s.confirm(pk, old)

	h, _ := s.Holding("gold")
	assert.True(t, generic.NewMoney(7).Equal(h.Usage(0).Record("2025_05").Used))
	assert.Equal(t, 1, s.PendingCount())
}

func TestState_SnapshotReplacesPendingForSameKey(t *testing.T) {
	// GIVEN: $8 pending for gold/0/2025_05
	// WHEN: A snapshot arrives carrying $9 for that key (another device won)
	// THEN: The snapshot value wins and pending is cleared

	s := NewState(3)
	s.ApplySnapshot([]Holding{usedHolding("gold", "2025_04", 1)})
	pk := pendingKey{kind: pendingUsage, key: generic.UsageKey{CardID: "gold", PeriodKey: "2025_05"}}
	s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(8)}})

	discarded := s.ApplySnapshot([]Holding{usedHolding("gold", "2025_05", 9)})

	assert.Empty(t, discarded)
	assert.Equal(t, 0, s.PendingCount())
	h, _ := s.Holding("gold")
	assert.True(t, generic.NewMoney(9).Equal(h.Usage(0).Record("2025_05").Used))
}

func TestState_UnconfirmedPendingDiscardedAfterMaxSnapshots(t *testing.T) {
	// GIVEN: A pending change the backend never reflects
	// WHEN: 3 snapshots arrive without it
	// THEN: It survives two and is discarded and reported on the third

	s := NewState(3)
	snap := []Holding{usedHolding("gold", "2025_04", 1)}
	s.ApplySnapshot(snap)
	pk := pendingKey{kind: pendingUsage, key: generic.UsageKey{CardID: "gold", PeriodKey: "2025_05"}}
	s.stage(pk, pendingEntry{record: UsageRecord{Used: generic.NewMoney(8)}})

	assert.Empty(t, s.ApplySnapshot(snap))
	assert.Empty(t, s.ApplySnapshot(snap))
	discarded := s.ApplySnapshot(snap)

	require.Len(t, discarded, 1)
	assert.Equal(t, "usage", discarded[0].Kind)
	assert.Equal(t, pk.key, discarded[0].Key)
	assert.Contains(t, discarded[0].Error(), "gold/0/2025_05")
	assert.Equal(t, 0, s.PendingCount())
}

func TestState_ViewIsDeepCopy(t *testing.T) {
	s := NewState(0)
	s.ApplySnapshot([]Holding{usedHolding("gold", "2025_05", 5)})

	view := s.View()
	view[0].Benefits[0].Periods["2025_05"] = UsageRecord{Used: generic.NewMoney(100)}

	h, _ := s.Holding("gold")
	assert.True(t, generic.NewMoney(5).Equal(h.Usage(0).Record("2025_05").Used))
}

func TestState_ViewSortedAndVersioned(t *testing.T) {
	s := NewState(0)
	assert.Equal(t, uint64(0), s.Version())

	s.ApplySnapshot([]Holding{{CardID: "z"}, {CardID: "a"}, {CardID: "m"}})

	ids := []generic.CardID{}
	for _, h := range s.View() {
		ids = append(ids, h.CardID)
	}
	assert.Equal(t, []generic.CardID{"a", "m", "z"}, ids)
	assert.Equal(t, uint64(1), s.Version())
}

func TestState_AnniversaryPending(t *testing.T) {
	s := NewState(3)
	s.ApplySnapshot([]Holding{{CardID: "gold"}})
	pk := pendingKey{kind: pendingAnniversary, key: generic.UsageKey{CardID: "gold"}}
	d := generic.NewDate(2023, time.January, 5)

	token := s.stage(pk, pendingEntry{anniversary: d})
	h, _ := s.Holding("gold")
	require.NotNil(t, h.AnniversaryDate)
	assert.True(t, d.Equal(*h.AnniversaryDate))

	s.confirm(pk, token)
	c, _ := s.Confirmed("gold")
	require.NotNil(t, c.AnniversaryDate)
	assert.Equal(t, 0, s.PendingCount())
}

func TestState_RemoveHoldingDropsPending(t *testing.T) {
	s := NewState(3)
	s.ApplySnapshot([]Holding{{CardID: "gold"}})
	s.stage(pendingKey{kind: pendingIgnore, key: generic.UsageKey{CardID: "gold"}}, pendingEntry{ignored: true})

	s.removeHolding("gold")

	_, ok := s.Holding("gold")
	assert.False(t, ok)
	assert.Equal(t, 0, s.PendingCount())
}
