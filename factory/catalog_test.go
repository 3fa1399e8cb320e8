package factory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/factory"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

const goldJSON = `{
  "cards": [{
    "id": "amex-gold",
    "name": "Gold",
    "issuer": "American Express",
    "annual_fee": "325.00",
    "categories": ["dining"],
    "benefits": [
      {"name": "Dining Credit", "value": 120, "frequency": "Monthly", "kind": "credit"},
      {"name": "Uber Cash", "value": 120, "frequency": "monthly", "kind": "perk", "period_values": {"2025_12": 35}},
      {"name": "Lounge", "value": 0, "frequency": "whenever", "kind": "protection"}
    ]
  }]
}`

func TestCatalogFactory_ParseJSON(t *testing.T) {
	// GIVEN: A JSON catalog with one card and three benefits
	// WHEN: Parsing
	// THEN: Amounts are exact, indexes are positional, unknown frequency is annual

	catalog, err := factory.NewCatalogFactory().ParseJSON([]byte(goldJSON))
	require.NoError(t, err)

	card, ok := catalog.Card("amex-gold")
	require.True(t, ok)
	assert.True(t, generic.NewMoney(325).Equal(card.AnnualFee))
	require.Len(t, card.Benefits, 3)

	assert.Equal(t, generic.BenefitIndex(1), card.Benefits[1].Index)
	assert.Equal(t, generic.Monthly, card.Benefits[0].Frequency)
	assert.Equal(t, wallet.KindPerk, card.Benefits[1].Kind)
	assert.True(t, generic.NewMoney(35).Equal(card.Benefits[1].PeriodOverrides["2025_12"]))
	assert.Equal(t, generic.Annually, card.Benefits[2].Frequency)
}

func TestCatalogFactory_ParseJSON_BareArray(t *testing.T) {
	catalog, err := factory.NewCatalogFactory().ParseJSON([]byte(`[{"id": "a", "benefits": []}, {"id": "b", "benefits": []}]`))
	require.NoError(t, err)

	assert.Equal(t, 2, catalog.Len())
	a, _ := catalog.Card("a")
	assert.Equal(t, "a", a.Name, "name defaults to id")
}

func TestCatalogFactory_ParseYAML(t *testing.T) {
	doc := `
cards:
  - id: csp
    name: Sapphire Preferred
    issuer: Chase
    annual_fee: 95
    benefits:
      - name: Hotel Credit
        value: 50.25
        frequency: annually
`
	catalog, err := factory.NewCatalogFactory().ParseYAML([]byte(doc))
	require.NoError(t, err)

	card, ok := catalog.Card("csp")
	require.True(t, ok)
	assert.True(t, generic.MustParseMoney("50.25").Equal(card.Benefits[0].Value))
	assert.Equal(t, wallet.KindCredit, card.Benefits[0].Kind, "blank kind is credit")
}

func TestCatalogFactory_Validation(t *testing.T) {
	f := factory.NewCatalogFactory()
	bad := map[string]string{
		"missing id":       `[{"name": "x"}]`,
		"duplicate id":     `[{"id": "a"}, {"id": "a"}]`,
		"negative value":   `[{"id": "a", "benefits": [{"name": "b", "value": -1}]}]`,
		"negative fee":     `[{"id": "a", "annual_fee": -5}]`,
		"unknown kind":     `[{"id": "a", "benefits": [{"name": "b", "value": 1, "kind": "lottery"}]}]`,
		"bad number":       `[{"id": "a", "annual_fee": "lots"}]`,
		"bad period key":   `[{"id": "a", "benefits": [{"name": "b", "value": 1, "frequency": "monthly", "period_values": {"Dec": 3}}]}]`,
		"key vs frequency": `[{"id": "a", "benefits": [{"name": "b", "value": 1, "frequency": "quarterly", "period_values": {"2025_12": 3}}]}]`,
		"missing benefit":  `[{"id": "a", "benefits": [{"value": 1}]}]`,
	}
	for name, doc := range bad {
		_, err := f.ParseJSON([]byte(doc))
		assert.ErrorIs(t, err, generic.ErrValidation, name)
	}

	_, err := f.ParseJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestCatalogFactory_LoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "catalog.json")
	yamlPath := filepath.Join(dir, "catalog.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(goldJSON), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte("- id: x\n  benefits: []\n"), 0o600))

	c, err := factory.NewCatalogFactory().LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c, err = factory.NewCatalogFactory().LoadFile(yamlPath)
	require.NoError(t, err)
	_, ok := c.Card("x")
	assert.True(t, ok)

	_, err = factory.NewCatalogFactory().LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestCatalogFactory_ToJSONRoundTrip(t *testing.T) {
	f := factory.NewCatalogFactory()
	catalog, err := f.ParseJSON([]byte(goldJSON))
	require.NoError(t, err)

	data, err := json.Marshal(f.ToJSON(catalog))
	require.NoError(t, err)
	again, err := f.ParseJSON(data)
	require.NoError(t, err)

	a, _ := catalog.Card("amex-gold")
	b, _ := again.Card("amex-gold")
	assert.True(t, a.AnnualFee.Equal(b.AnnualFee))
	assert.True(t, a.TotalBenefitValue().Equal(b.TotalBenefitValue()))
	assert.True(t, a.Benefits[1].PeriodOverrides["2025_12"].Equal(b.Benefits[1].PeriodOverrides["2025_12"]))
}

func TestDefaultCatalog_Loads(t *testing.T) {
	catalog := factory.DefaultCatalog()

	assert.GreaterOrEqual(t, catalog.Len(), 5)
	gold, ok := catalog.Card("amex-gold")
	require.True(t, ok)

	// Uber Cash: $10/month with a $35 December
	uber := gold.Benefits[1]
	periods := generic.GeneratePeriods(uber.Entitlement(), nil, generic.NewDate(2025, time.March, 1))
	assert.True(t, generic.NewMoney(35).Equal(periods[11].MaxValue))
	assert.True(t, generic.NewMoney(10).Equal(periods[0].MaxValue))
}
