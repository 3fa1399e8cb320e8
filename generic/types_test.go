package generic_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// MONEY
// =============================================================================

func TestMoney_NoRoundingUntilDisplay(t *testing.T) {
	// GIVEN: $100 split across 12 months
	// WHEN: Summing the shares back
	// THEN: The sum displays as 100.00 while each share displays as 8.33

	share := generic.NewMoney(100).Div(decimal.NewFromInt(12))
	total := generic.Zero
	for i := 0; i < 12; i++ {
		total = total.Add(share)
	}

	assert.Equal(t, "8.33", share.Display())
	assert.Equal(t, "100.00", total.Display())
	assert.Equal(t, "$100.00", total.String())
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A generic.Money `json:"a"`
	}{generic.NewMoney(12.345)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 12.345}`, string(data))

	var out struct {
		A generic.Money `json:"a"`
		B generic.Money `json:"b"`
		C generic.Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 7.5, "b": "3.25", "c": null}`), &out))
	assert.True(t, generic.NewMoney(7.5).Equal(out.A))
	assert.True(t, generic.NewMoney(3.25).Equal(out.B))
	assert.True(t, out.C.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"a": "lots"}`), &out))
}

func TestMoney_JSONKeepsFractionalShares(t *testing.T) {
	// GIVEN: A monthly share of $100 that does not split into whole cents
	// WHEN: Encoding it and decoding it back
	// THEN: The decoded value equals the original and twelve of them sum to $100

	share := generic.NewMoney(100).Div(decimal.NewFromInt(12))

	data, err := json.Marshal(share)
	require.NoError(t, err)

	var decoded generic.Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, share.Equal(decoded), "got %s", data)

	total := generic.Zero
	for i := 0; i < 12; i++ {
		total = total.Add(decoded)
	}
	assert.Equal(t, "100.00", total.Display())
}

func TestMoney_Compare(t *testing.T) {
	a, b := generic.NewMoney(5), generic.NewMoney(7)

	assert.True(t, a.Min(b).Equal(a))
	assert.True(t, a.Max(b).Equal(b))
	assert.True(t, a.Sub(b).IsNegative())
	assert.True(t, generic.Sum(a, b, a).Equal(generic.NewMoney(17)))
	assert.True(t, generic.MustParseMoney("2.50").Equal(generic.NewMoney(2.5)))
}

// =============================================================================
// DATES
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("anniversary_date", "2024-06-15")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.June, d.Month())

	_, err = generic.ParseDate("anniversary_date", "")
	var valErr *generic.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "anniversary_date", valErr.Field)

	for _, s := range []string{"2024-6-15", "06/15/2024", "2024-02-30", "yesterday"} {
		_, err = generic.ParseDate("d", s)
		assert.ErrorIs(t, err, generic.ErrValidation, s)
	}

	none, err := generic.ParseOptionalDate("d", "  ")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestDate_AddMonthsNormalizes(t *testing.T) {
	d := generic.NewDate(2023, time.August, 31)
	assert.Equal(t, "2025-08-31", d.AddMonths(24).String())
	assert.Equal(t, "2023-10-01", d.AddMonths(1).String(), "Sept 31 normalizes")
}

func TestDate_TextRoundTrip(t *testing.T) {
	var d generic.Date
	require.NoError(t, d.UnmarshalText([]byte("2025-01-31")))
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-31", string(text))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	netErr := &generic.NetworkError{Op: generic.OpUpdateBenefit, StatusCode: 503, Retryable: true}
	assert.True(t, generic.IsRetryable(netErr))
	assert.ErrorIs(t, netErr, generic.ErrNetwork)
	assert.Contains(t, netErr.Error(), "status 503")

	assert.True(t, generic.IsClientError(&generic.ValidationError{Field: "amount"}))
	assert.True(t, generic.IsClientError(&generic.StateConflictError{Reason: "used"}))
	assert.True(t, generic.IsNotFound(&generic.NotFoundError{Kind: "card", ID: "x"}))
	assert.False(t, generic.IsRetryable(errors.New("plain")))

	batch := &generic.BatchError{Op: "mark", Failed: 1, Total: 3, Errs: []error{netErr}}
	assert.ErrorIs(t, batch, generic.ErrNetwork)
	assert.Equal(t, "mark: 1 of 3 operations failed", batch.Error())
}
