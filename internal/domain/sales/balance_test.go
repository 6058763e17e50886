package sales

import (
	"testing"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
)

func usdInvoice(fields Record) *MergedInvoice {
	row := invoiceRow("900", diamondLine("x"))
	for k, v := range fields {
		row[k] = v
	}
	return NewMerger(nil).Merge([]Record{row}).Invoices["900"]
}

func goldInvoice(fields Record) *MergedInvoice {
	row := invoiceRow("901", goldLine("x", 10))
	for k, v := range fields {
		row[k] = v
	}
	return NewMerger(nil).Merge([]Record{row}).Invoices["901"]
}

func TestHomeCurrency(t *testing.T) {
	tests := []struct {
		tag  string
		want valueobject.Currency
	}{
		{"Gold Supplier", valueobject.LYD},
		{"GOLD", valueobject.LYD},
		{"Diamond", valueobject.USD},
		{"watch dealer", valueobject.USD},
		{"", valueobject.USD},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, HomeCurrency(ParseSupplierType(tt.tag)))
		})
	}
}

func TestImpliedRate(t *testing.T) {
	r, ok := ImpliedRate(dec("4850"), dec("1000"))
	assert.True(t, ok)
	assert.True(t, r.Equal(dec("4.85")))

	_, ok = ImpliedRate(dec("0"), dec("1000"))
	assert.False(t, ok, "never a zero rate")
	_, ok = ImpliedRate(dec("4850"), dec("0"))
	assert.False(t, ok, "never an infinite rate")
}

func TestBalance_Gold(t *testing.T) {
	calc := NewBalanceCalculator()

	t.Run("computed from totals", func(t *testing.T) {
		inv := goldInvoice(Record{
			"total_remise_final_lyd": 10000,
			"amount_lyd":             4000,
			"amount_currency":        200,
			"amount_currency_LYD":    1000,
		})
		b := calc.Compute(inv)

		assert.Equal(t, valueobject.LYD, b.HomeCurrency)
		assert.True(t, b.LYD.Remaining.Equal(dec("5000")))
		assert.True(t, b.USD.Remaining.IsZero(), "gold has no USD total")
	})

	t.Run("backend remainder preferred", func(t *testing.T) {
		inv := goldInvoice(Record{
			"total_remise_final_lyd": 10000,
			"amount_lyd":             4000,
			"rest_of_money":          123,
		})
		assert.True(t, calc.Compute(inv).LYD.Remaining.Equal(dec("123")))
	})

	t.Run("missing equivalent derived from explicit rate", func(t *testing.T) {
		inv := goldInvoice(Record{
			"total_remise_final_lyd": 10000,
			"amount_currency":        1000,
			"usd_to_lyd_rate":        "5",
		})
		b := calc.Compute(inv)
		assert.True(t, b.USD.PaidLYD.Equal(dec("5000")))
		assert.True(t, b.LYD.Remaining.Equal(dec("5000")))
	})

	t.Run("overpaid clamps to zero", func(t *testing.T) {
		inv := goldInvoice(Record{"total_remise_final_lyd": 100, "amount_lyd": 250})
		assert.True(t, calc.Compute(inv).LYD.Remaining.IsZero())
	})
}

func TestBalance_USDHome(t *testing.T) {
	calc := NewBalanceCalculator()

	t.Run("remaining with implied LYD equivalent", func(t *testing.T) {
		inv := usdInvoice(Record{
			"total_remise_final":  1000,
			"amount_currency":     600,
			"amount_currency_LYD": 3000,
		})
		b := calc.Compute(inv)

		assert.Equal(t, valueobject.USD, b.HomeCurrency)
		assert.True(t, b.USD.Remaining.Equal(dec("400")))
		assert.True(t, b.USD.RemainingLYD.Equal(dec("2000")))
		assert.True(t, b.LYD.Remaining.IsZero(), "LYD is only a payment method")
	})

	t.Run("no rate leaves equivalent at zero", func(t *testing.T) {
		inv := usdInvoice(Record{"total_remise_final": 1000, "amount_currency": 600})
		b := calc.Compute(inv)
		assert.True(t, b.USD.Remaining.Equal(dec("400")))
		assert.True(t, b.USD.RemainingLYD.IsZero())
	})

	t.Run("EUR independent of USD", func(t *testing.T) {
		inv := usdInvoice(Record{
			"total_remise_final": 1000,
			"amount_currency":    1000,
			"totalAmountEur":     300,
			"amount_EUR":         100,
			"amount_EUR_LYD":     600,
		})
		b := calc.Compute(inv)
		assert.True(t, b.USD.Remaining.IsZero())
		assert.True(t, b.EUR.Remaining.Equal(dec("200")))
		assert.True(t, b.EUR.RemainingLYD.Equal(dec("1200")))
	})

	t.Run("backend LYD remainder reported as is", func(t *testing.T) {
		inv := usdInvoice(Record{"total_remise_final": 1000, "amount_currency": 1000, "rest_of_money_lyd": 80})
		assert.True(t, calc.Compute(inv).LYD.Remaining.Equal(dec("80")))
	})
}

func TestBalance_RemainingNeverNegative(t *testing.T) {
	calc := NewBalanceCalculator()
	cases := []Record{
		{"total_remise_final": 10, "amount_currency": 1000},
		{"total_remise_final": -5},
		{"totalAmountEur": 1, "amount_EUR": 99},
		{"rest_of_moneyUSD": -40, "total_remise_final": 0},
	}
	for _, fields := range cases {
		for _, inv := range []*MergedInvoice{usdInvoice(fields), goldInvoice(fields)} {
			b := calc.Compute(inv)
			for _, cb := range []CurrencyBalance{b.LYD, b.USD, b.EUR} {
				assert.False(t, cb.Remaining.IsNegative(), "%s remaining %s", cb.Currency, cb.Remaining)
			}
		}
	}
}

func TestBalance_Materiality(t *testing.T) {
	calc := NewBalanceCalculator()

	dust := usdInvoice(Record{"total_remise_final": 1000, "amount_currency": "999.2"})
	b := calc.Compute(dust)
	assert.False(t, b.USD.Displayable())
	assert.True(t, b.Settled())

	owed := usdInvoice(Record{"total_remise_final": 1000, "amount_currency": 990})
	b = calc.Compute(owed)
	assert.True(t, b.USD.Displayable())
	assert.Len(t, b.Outstanding(), 1)
	assert.Equal(t, "USD 10.00", b.Outstanding()[0].String())
}
