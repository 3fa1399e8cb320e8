package wallet_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

func TestDecodeHolding_LegacyKeysNormalized(t *testing.T) {
	// GIVEN: An old document using card_id and bare numeric benefit keys
	// WHEN: Decoding
	// THEN: The holding looks the same as one written in the canonical shape

	legacy := `{
		"card_id": "gold",
		"anniversary_date": "2022-09-15",
		"benefit_usage": {
			"0": {"periods": {"2025_05": {"used": 4, "status": "partial"}}},
			"3": {"periods": {"2025_05": {"used": 25, "is_full": true, "is_ignored": true}}}
		}
	}`
	canonical := `{
		"id": "gold",
		"status": "active",
		"anniversary_date": "2022-09-15",
		"benefit_usage": {
			"benefit_0": {"periods": {"2025_05": {"used": 4, "status": "partial"}}},
			"benefit_3": {"is_ignored": true, "periods": {"2025_05": {"used": 25, "status": "full"}}}
		}
	}`

	a, err := wallet.DecodeHolding([]byte(legacy))
	require.NoError(t, err)
	b, err := wallet.DecodeHolding([]byte(canonical))
	require.NoError(t, err)

	assert.Equal(t, generic.CardID("gold"), a.CardID)
	assert.True(t, a.IsActive())
	for _, h := range []wallet.Holding{a, b} {
		assert.Equal(t, wallet.StatusPartial, h.Usage(0).Record("2025_05").Status)
		assert.Equal(t, wallet.StatusFull, h.Usage(3).Record("2025_05").Status)
		assert.True(t, h.Usage(3).IsIgnored)
		assert.Equal(t, "2022-09-15", h.AnniversaryDate.String())
	}
}

func TestDecodeHolding_BothKeyFormsMerge(t *testing.T) {
	doc := `{"id": "gold", "benefit_usage": {
		"2": {"periods": {"2025_Q1": {"used": 10}}},
		"benefit_2": {"periods": {"2025_Q1": {"used": 30}, "2025_Q2": {"used": 5}}}
	}}`

	h, err := wallet.DecodeHolding([]byte(doc))
	require.NoError(t, err)

	u := h.Usage(2)
	assert.True(t, generic.NewMoney(30).Equal(u.Record("2025_Q1").Used), "canonical key wins")
	assert.True(t, generic.NewMoney(5).Equal(u.Record("2025_Q2").Used))
}

func TestDecodeHolding_Errors(t *testing.T) {
	_, err := wallet.DecodeHolding([]byte(`{"benefit_usage": {}}`))
	assert.ErrorIs(t, err, generic.ErrValidation, "no id")

	_, err = wallet.DecodeHolding([]byte(`{"id": "gold", "anniversary_date": "15/09/2022"}`))
	assert.ErrorIs(t, err, generic.ErrValidation, "bad date")

	_, err = wallet.DecodeHolding([]byte(`{"id": "gold", "benefit_usage": {"dining": {"periods": {}}}}`))
	assert.ErrorIs(t, err, generic.ErrValidation, "bad benefit key")

	_, err = wallet.DecodeHolding([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeSnapshot_ActiveOnly(t *testing.T) {
	snap := `[{"id": "gold"}, {"id": "old", "status": "removed"}, {"card_id": "sapphire", "status": "active"}]`

	holdings, err := wallet.DecodeSnapshot([]byte(snap))
	require.NoError(t, err)

	require.Len(t, holdings, 2)
	assert.Equal(t, generic.CardID("gold"), holdings[0].CardID)
	assert.Equal(t, generic.CardID("sapphire"), holdings[1].CardID)
}

func TestEncodeHolding_CanonicalShape(t *testing.T) {
	h := holdingWith("gold", datePtr(2022, 9, 15), map[generic.BenefitIndex]map[generic.PeriodKey]float64{1: {"2025_Q2": 75}})

	data, err := json.Marshal(wallet.EncodeHolding(h))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "gold", raw["id"])
	assert.Equal(t, "active", raw["status"])
	assert.Equal(t, "2022-09-15", raw["anniversary_date"])
	usage := raw["benefit_usage"].(map[string]any)
	assert.Contains(t, usage, "benefit_1")

	back, err := wallet.DecodeHolding(data)
	require.NoError(t, err)
	assert.True(t, generic.NewMoney(75).Equal(back.Usage(1).Record("2025_Q2").Used))
}
