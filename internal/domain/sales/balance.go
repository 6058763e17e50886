package sales

import (
	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CurrencyBalance is the state of one currency on one invoice
type CurrencyBalance struct {
	Currency     valueobject.Currency `json:"currency"`
	Total        decimal.Decimal      `json:"total"`
	Paid         decimal.Decimal      `json:"paid"`
	PaidLYD      decimal.Decimal      `json:"paid_lyd"`
	Remaining    decimal.Decimal      `json:"remaining"`
	RemainingLYD decimal.Decimal      `json:"remaining_lyd"`
}

// Displayable reports whether the remainder is large enough to show as debt
func (b CurrencyBalance) Displayable() bool {
	return valueobject.Material(b.Remaining)
}

// DisplayableLYD reports whether the LYD equivalent of the remainder is shown
func (b CurrencyBalance) DisplayableLYD() bool {
	return valueobject.Material(b.RemainingLYD)
}

// InvoiceBalance is the per-currency balance of one invoice
type InvoiceBalance struct {
	HomeCurrency valueobject.Currency `json:"home_currency"`
	LYD          CurrencyBalance      `json:"lyd"`
	USD          CurrencyBalance      `json:"usd"`
	EUR          CurrencyBalance      `json:"eur"`
}

// Currency returns the balance for c
func (b InvoiceBalance) Currency(c valueobject.Currency) CurrencyBalance {
	switch c {
	case valueobject.USD:
		return b.USD
	case valueobject.EUR:
		return b.EUR
	default:
		return b.LYD
	}
}

// Outstanding lists the remainders that survive the materiality threshold
func (b InvoiceBalance) Outstanding() []valueobject.Money {
	var out []valueobject.Money
	for _, cb := range []CurrencyBalance{b.LYD, b.USD, b.EUR} {
		if cb.Displayable() {
			out = append(out, valueobject.MustNewMoney(cb.Remaining, cb.Currency))
		}
	}
	return out
}

// Settled reports whether nothing material is owed
func (b InvoiceBalance) Settled() bool {
	return len(b.Outstanding()) == 0
}

// ImpliedRate derives LYD per foreign unit from a recorded payment.
// Defined only when both sides are positive.
func ImpliedRate(paidLYD, paidForeign decimal.Decimal) (decimal.Decimal, bool) {
	if !paidLYD.IsPositive() || !paidForeign.IsPositive() {
		return decimal.Zero, false
	}
	return paidLYD.Div(paidForeign), true
}

// BalanceCalculator computes InvoiceBalance values. Gold invoices are
// settled in dinars; diamond and watch invoices are settled in dollars with
// LYD accepted as a payment method.
type BalanceCalculator struct{}

// NewBalanceCalculator creates a calculator
func NewBalanceCalculator() *BalanceCalculator {
	return &BalanceCalculator{}
}

// Compute returns the balance from the amounts recorded on the invoice.
// A positive backend remainder wins over the computed one.
func (c *BalanceCalculator) Compute(inv *MergedInvoice) InvoiceBalance {
	return c.compute(inv, RecordedPayment(inv.Fields), true)
}

// ComputeWithPayment recomputes the balance as if entry were the amounts
// paid. Backend remainders describe the old payment and are ignored.
func (c *BalanceCalculator) ComputeWithPayment(inv *MergedInvoice, entry PaymentEntry) InvoiceBalance {
	return c.compute(inv, entry, false)
}

func (c *BalanceCalculator) compute(inv *MergedInvoice, paid PaymentEntry, useBackend bool) InvoiceBalance {
	f := inv.Fields
	home := inv.HomeCurrency()

	backend := func(q Quantity) decimal.Decimal {
		if !useBackend {
			return decimal.Zero
		}
		d, _ := q.Positive(f)
		return d
	}
	orComputed := func(b, computed decimal.Decimal) decimal.Decimal {
		if b.IsPositive() {
			return b
		}
		return valueobject.NonNegative(computed)
	}

	usdRate, usdRateOK := foreignRate(f, RateUSD, paid.USDLYD, paid.USD)
	eurRate, eurRateOK := foreignRate(f, RateEUR, paid.EURLYD, paid.EUR)
	usdLYD := lydEquivalent(paid.USDLYD, paid.USD, f, RateUSD)
	eurLYD := lydEquivalent(paid.EURLYD, paid.EUR, f, RateEUR)

	b := InvoiceBalance{
		HomeCurrency: home,
		LYD: CurrencyBalance{
			Currency: valueobject.LYD,
			Total:    TotalLYD.OrZero(f),
			Paid:     paid.LYD,
			PaidLYD:  paid.LYD,
		},
		USD: CurrencyBalance{
			Currency: valueobject.USD,
			Total:    TotalUSD.OrZero(f),
			Paid:     paid.USD,
			PaidLYD:  usdLYD,
		},
		EUR: CurrencyBalance{
			Currency: valueobject.EUR,
			Total:    TotalEUR.OrZero(f),
			Paid:     paid.EUR,
			PaidLYD:  eurLYD,
		},
	}

	if home == valueobject.LYD {
		settledLYD := paid.LYD.Add(usdLYD).Add(eurLYD)
		b.LYD.Remaining = orComputed(backend(RestLYD), b.LYD.Total.Sub(settledLYD))
		b.USD.Remaining = backend(RestUSD)
		b.EUR.Remaining = backend(RestEUR)
		b.USD.RemainingLYD = backend(RestUSDLYD)
		b.EUR.RemainingLYD = backend(RestEURLYD)
	} else {
		b.USD.Remaining = orComputed(backend(RestUSD), b.USD.Total.Sub(paid.USD))
		b.EUR.Remaining = orComputed(backend(RestEUR), b.EUR.Total.Sub(paid.EUR))
		b.LYD.Remaining = backend(RestLYD)
		if b.USD.Remaining.IsPositive() {
			b.USD.RemainingLYD = remainingLYD(backend(RestUSDLYD), b.USD.Remaining, usdRate, usdRateOK)
		}
		if b.EUR.Remaining.IsPositive() {
			b.EUR.RemainingLYD = remainingLYD(backend(RestEURLYD), b.EUR.Remaining, eurRate, eurRateOK)
		}
	}
	b.LYD.RemainingLYD = b.LYD.Remaining
	return b
}

// foreignRate prefers an explicitly recorded rate over the one implied by the payment
func foreignRate(f Record, explicit Quantity, paidLYD, paidForeign decimal.Decimal) (decimal.Decimal, bool) {
	if r, ok := explicit.Positive(f); ok {
		return r, true
	}
	return ImpliedRate(paidLYD, paidForeign)
}

// lydEquivalent returns the recorded LYD equivalent of a foreign payment,
// deriving it from an explicit rate when the equivalent was not recorded.
func lydEquivalent(recorded, foreign decimal.Decimal, f Record, explicit Quantity) decimal.Decimal {
	if recorded.IsPositive() || !foreign.IsPositive() {
		return recorded
	}
	if r, ok := explicit.Positive(f); ok {
		return foreign.Mul(r)
	}
	return recorded
}

func remainingLYD(backend, remaining, rate decimal.Decimal, rateOK bool) decimal.Decimal {
	if backend.IsPositive() {
		return backend
	}
	if !rateOK {
		return decimal.Zero
	}
	return remaining.Mul(rate)
}
