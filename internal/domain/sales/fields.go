package sales

import (
	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Accessor extracts one candidate value for a logical quantity
type Accessor func(Record) any

// Field reads a top-level key
func Field(name string) Accessor {
	return func(r Record) any { return r.Get(name) }
}

// Quantity is an ordered list of accessors for values the backend stores
// under several legacy names. Earlier accessors win.
type Quantity []Accessor

// Fields builds a Quantity from plain key names
func Fields(names ...string) Quantity {
	q := make(Quantity, len(names))
	for i, n := range names {
		q[i] = Field(n)
	}
	return q
}

// Values returns every candidate in priority order
func (q Quantity) Values(r Record) []any {
	out := make([]any, len(q))
	for i, a := range q {
		out[i] = a(r)
	}
	return out
}

// Resolve returns the first candidate that normalizes to a number
func (q Quantity) Resolve(r Record) (decimal.Decimal, bool) {
	return valueobject.PickFirst(q.Values(r)...)
}

// OrZero resolves the quantity, mapping absence to zero
func (q Quantity) OrZero(r Record) decimal.Decimal {
	d, _ := q.Resolve(r)
	return d
}

// Positive resolves the quantity and reports it only when strictly positive
func (q Quantity) Positive(r Record) (decimal.Decimal, bool) {
	d, ok := q.Resolve(r)
	if !ok || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// PreferFields are the financial aliases reconciled first-non-null-wins when
// the same invoice arrives from several point-of-sale or type queries.
var PreferFields = []string{
	"amount_lyd",
	"amount_currency",
	"amount_currency_LYD",
	"amount_EUR",
	"amount_EUR_LYD",
	"rest_of_money",
	"rest_of_moneyLYD",
	"rest_of_money_lyd",
	"rest_of_moneyUSD",
	"rest_of_money_usd",
	"rest_of_moneyUSD_LYD",
	"rest_of_money_usd_lyd",
	"rest_of_moneyEUR",
	"rest_of_money_eur",
	"rest_of_moneyEUR_LYD",
	"rest_of_money_eur_lyd",
	"total_remise_final_lyd",
	"total_remise_final_LYD",
	"totalAmountUsd",
	"total_amount_usd",
	"totalAmountEur",
	"total_amount_eur",
	"usd_to_lyd_rate",
	"rate_usd",
	"currency_rate_usd",
	"exchange_rate_usd",
	"eur_to_lyd_rate",
	"rate_eur",
	"currency_rate_eur",
	"exchange_rate_eur",
}

// Invoice totals
var (
	TotalLYD = Fields("total_remise_final_lyd", "total_remise_final_LYD")
	TotalUSD = Fields("total_remise_final", "totalAmountUsd", "total_amount_usd")
	TotalEUR = Fields("totalAmountEur", "total_amount_eur")

	// GrossTotal is the pre-discount figure the rollup adjusts
	GrossTotal      = Fields("total_remise_final")
	Discount        = Fields("remise")
	DiscountPercent = Fields("remise_per")
)

// Recorded payments
var (
	PaidLYD    = Fields("amount_lyd")
	PaidUSD    = Fields("amount_currency")
	PaidUSDLYD = Fields("amount_currency_LYD")
	PaidEUR    = Fields("amount_EUR")
	PaidEURLYD = Fields("amount_EUR_LYD")
)

// Backend-recorded remainders
var (
	RestLYD    = Fields("rest_of_money", "rest_of_moneyLYD", "rest_of_money_lyd")
	RestUSD    = Fields("rest_of_moneyUSD", "rest_of_money_usd")
	RestEUR    = Fields("rest_of_moneyEUR", "rest_of_money_eur")
	RestUSDLYD = Fields("rest_of_moneyUSD_LYD", "rest_of_money_usd_lyd")
	RestEURLYD = Fields("rest_of_moneyEUR_LYD", "rest_of_money_eur_lyd")
)

// Explicit exchange rates (LYD per unit of foreign currency)
var (
	RateUSD = Fields("usd_to_lyd_rate", "rate_usd", "currency_rate_usd", "exchange_rate_usd")
	RateEUR = Fields("eur_to_lyd_rate", "rate_eur", "currency_rate_eur", "exchange_rate_eur")
	// InvoiceRate is the generic rate some invoices carry instead of a per-currency one
	InvoiceRate = Fields("rate")
)

// Unit price aliases, checked on the sold line first and its purchase record second
var (
	LinePrice = Fields(
		"prix_vente_remise", "PRIX_VENTE_REMISE",
		"prix_vente", "PRIX_VENTE",
		"prixVente", "PrixVente",
		"selling_price", "Selling_price", "SELLING_PRICE",
		"price", "Price", "PRICE",
		"total_remise", "TOTAL_REMISE",
	)
	PurchasePrice = Fields(
		"prix_vente_remise", "PRIX_VENTE_REMISE",
		"prix_vente", "PRIX_VENTE",
		"selling_price", "Selling_price",
		"price", "Price",
		"total_remise", "TOTAL_REMISE",
	)
)

// LineQuantity is the quantity (grams for gold) on a sold line
var LineQuantity = Fields("qty")
