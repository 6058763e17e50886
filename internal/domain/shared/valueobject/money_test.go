package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromFloat(100.50), LYD)
		require.NoError(t, err)
		assert.Equal(t, LYD, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromFloat(100.50)))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromFloat(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestMustNewMoney_PanicsOnEmptyCurrency(t *testing.T) {
	assert.Panics(t, func() {
		MustNewMoney(decimal.NewFromInt(1), "")
	})
}

func TestCurrencyIsForeign(t *testing.T) {
	assert.False(t, LYD.IsForeign())
	assert.True(t, USD.IsForeign())
	assert.True(t, EUR.IsForeign())
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustNewMoney(decimal.NewFromInt(100), USD)
	b := MustNewMoney(decimal.NewFromInt(40), USD)

	t.Run("add same currency", func(t *testing.T) {
		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.True(t, sum.Amount().Equal(decimal.NewFromInt(140)))
	})

	t.Run("subtract same currency", func(t *testing.T) {
		diff, err := a.Subtract(b)
		require.NoError(t, err)
		assert.True(t, diff.Amount().Equal(decimal.NewFromInt(60)))
	})

	t.Run("mixed currencies are rejected", func(t *testing.T) {
		_, err := a.Add(Zero(EUR))
		assert.Error(t, err)
		_, err = a.Subtract(Zero(LYD))
		assert.Error(t, err)
	})
}

func TestMoneyJSON(t *testing.T) {
	m := MustNewMoney(decimal.RequireFromString("1234.5"), EUR)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1234.50","currency":"EUR"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, EUR, back.Currency())
	assert.True(t, back.Amount().Equal(m.Amount()))

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"x","currency":"EUR"}`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1","currency":""}`), &back))
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "LYD 12.30", MustNewMoney(decimal.RequireFromString("12.3"), LYD).String())
}
