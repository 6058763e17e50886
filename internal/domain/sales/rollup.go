package sales

import (
	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary aggregates a filtered set of merged invoices
type Summary struct {
	InvoiceCount int             `json:"invoice_count"`
	ItemCount    int             `json:"item_count"`
	TotalWeight  decimal.Decimal `json:"total_weight"`
	TotalGold    decimal.Decimal `json:"total_gold"`
	TotalDiamond decimal.Decimal `json:"total_diamond"`
	TotalWatch   decimal.Decimal `json:"total_watch"`
	TotalRestLYD decimal.Decimal `json:"total_rest_lyd"`
	TotalRestUSD decimal.Decimal `json:"total_rest_usd"`
	TotalRestEUR decimal.Decimal `json:"total_rest_eur"`
	// TotalLYDDue is TotalRestLYD rounded up to whole dinars
	TotalLYDDue decimal.Decimal `json:"total_lyd_due"`
}

// AdjustedTotal applies the invoice discount: a flat remise wins over a
// percentage one.
func AdjustedTotal(f Record) decimal.Decimal {
	base := GrossTotal.OrZero(f)
	if remise, ok := Discount.Positive(f); ok {
		return base.Sub(remise)
	}
	if pct, ok := DiscountPercent.Positive(f); ok {
		return base.Sub(base.Mul(pct).Div(hundred))
	}
	return base
}

// Summarize rolls invoices up into a Summary. The same invoice number may
// appear more than once (one copy per point-of-sale query); per type only
// the largest adjusted total for a number is counted. Rest totals are the
// remainders BalanceCalculator.Compute reports for each invoice.
func Summarize(invoices []*MergedInvoice) Summary {
	s := Summary{InvoiceCount: len(invoices)}
	calc := NewBalanceCalculator()
	maxByType := map[SupplierType]map[string]decimal.Decimal{
		SupplierGold:    {},
		SupplierDiamond: {},
		SupplierWatch:   {},
	}

	for _, inv := range invoices {
		s.ItemCount += len(inv.Products)
		b := calc.Compute(inv)
		s.TotalRestLYD = s.TotalRestLYD.Add(b.LYD.Remaining)
		s.TotalRestUSD = s.TotalRestUSD.Add(b.USD.Remaining)
		s.TotalRestEUR = s.TotalRestEUR.Add(b.EUR.Remaining)

		if len(inv.Lines) == 0 {
			continue
		}
		kind := ParseSupplierType(lineSupplierTag(inv.Lines[0]))
		if kind == SupplierGold {
			if qty, ok := LineQuantity.Resolve(inv.Lines[0]); ok {
				s.TotalWeight = s.TotalWeight.Add(qty)
			}
		}
		if !kind.IsValid() || inv.Number == "" {
			continue
		}
		adjusted := AdjustedTotal(inv.Fields)
		m := maxByType[kind]
		if cur, ok := m[inv.Number]; !ok || cur.LessThan(adjusted) {
			m[inv.Number] = adjusted
		}
	}

	s.TotalGold = sumValues(maxByType[SupplierGold])
	s.TotalDiamond = sumValues(maxByType[SupplierDiamond])
	s.TotalWatch = sumValues(maxByType[SupplierWatch])
	s.TotalLYDDue = valueobject.CeilWhole(s.TotalRestLYD)
	return s
}

func sumValues(m map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range m {
		sum = sum.Add(v)
	}
	return sum
}
