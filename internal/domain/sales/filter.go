package sales

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SaleKind tags an invoice by how it was sold
type SaleKind string

const (
	SaleChira     SaleKind = "Chira"
	SaleGift      SaleKind = "Gift"
	SaleWholesale SaleKind = "Wholesale"
	SaleNormal    SaleKind = "Normal"
)

// PaymentStatus classifies an invoice by what is still owed
type PaymentStatus string

const (
	PaymentAll     PaymentStatus = "all"
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
)

// Filter selects invoices for a report. Zero values select everything.
type Filter struct {
	From          *time.Time
	To            *time.Time
	Search        string
	Customer      string
	Types         []string
	SaleKinds     []SaleKind
	PaymentStatus PaymentStatus
	RestOnly      bool
}

// SaleKindsOf returns the kinds an invoice counts as. Normal means none of the others.
func SaleKindsOf(inv *MergedInvoice) []SaleKind {
	var kinds []SaleKind
	if inv.Chira {
		kinds = append(kinds, SaleChira)
	}
	if inv.HasGift() {
		kinds = append(kinds, SaleGift)
	}
	if inv.Wholesale {
		kinds = append(kinds, SaleWholesale)
	}
	if len(kinds) == 0 {
		kinds = append(kinds, SaleNormal)
	}
	return kinds
}

// PaymentStatusOf derives the status from the invoice balance, so an
// unpaid remainder counts even when the backend recorded no rest field
func PaymentStatusOf(inv *MergedInvoice) PaymentStatus {
	switch {
	case NewBalanceCalculator().Compute(inv).Settled():
		return PaymentPaid
	case !inv.Closed:
		return PaymentUnpaid
	default:
		return PaymentPartial
	}
}

// HasRest reports whether an invoice carries a remainder or any payment
func HasRest(inv *MergedInvoice) bool {
	f := inv.Fields
	rests := RestLYD.OrZero(f).Add(RestUSD.OrZero(f)).Add(RestEUR.OrZero(f))
	paid := PaidLYD.OrZero(f).Add(PaidUSDLYD.OrZero(f)).Add(PaidEURLYD.OrZero(f))
	return rests.IsPositive() || paid.IsPositive()
}

// InPeriod reports whether the invoice date falls inside the filter period.
// Invoices without a parseable date are kept.
func (f Filter) InPeriod(inv *MergedInvoice) bool {
	if inv.Date == nil {
		return true
	}
	if f.From != nil && inv.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && inv.Date.After(*f.To) {
		return false
	}
	return true
}

// Match reports whether inv passes every criterion
func (f Filter) Match(inv *MergedInvoice) bool {
	if !f.InPeriod(inv) {
		return false
	}
	if f.Search != "" && !matchesSearch(inv, f.Search) {
		return false
	}
	if f.Customer != "" && !matchesCustomer(inv, f.Customer) {
		return false
	}
	if !f.matchesType(inv) {
		return false
	}
	if !f.matchesSaleKind(inv) {
		return false
	}
	if f.PaymentStatus != "" && f.PaymentStatus != PaymentAll && PaymentStatusOf(inv) != f.PaymentStatus {
		return false
	}
	if f.RestOnly && !HasRest(inv) {
		return false
	}
	return true
}

// Apply returns the invoices that pass the filter, preserving order
func (f Filter) Apply(invoices []*MergedInvoice) []*MergedInvoice {
	out := make([]*MergedInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if f.Match(inv) {
			out = append(out, inv)
		}
	}
	return out
}

// AllTypes reports whether the type criterion selects every supplier type
func (f Filter) AllTypes() bool {
	return len(f.Types) == 0 || slices.Contains(f.Types, TypeFilterAll)
}

func (f Filter) matchesType(inv *MergedInvoice) bool {
	if f.AllTypes() {
		return true
	}
	tag := ""
	if len(inv.Lines) > 0 {
		tag = strings.ToLower(lineSupplierTag(inv.Lines[0]))
	}
	for _, t := range f.Types {
		if strings.Contains(tag, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func (f Filter) matchesSaleKind(inv *MergedInvoice) bool {
	if len(f.SaleKinds) == 0 || slices.Contains(f.SaleKinds, "All") {
		return true
	}
	for _, k := range SaleKindsOf(inv) {
		if slices.Contains(f.SaleKinds, k) {
			return true
		}
	}
	return false
}

func matchesSearch(inv *MergedInvoice, term string) bool {
	raw, err := json.Marshal(inv.Fields)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), strings.ToLower(term))
}

func matchesCustomer(inv *MergedInvoice, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	c := inv.Customer
	for _, v := range []string{c.Name, c.Phone, c.ID, inv.Fields.String("client")} {
		if v != "" && strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

// SortKey names a report ordering
type SortKey string

const (
	SortInvoiceNumber SortKey = "invoice_number"
	SortDateCreated   SortKey = "date_created"
	SortInvoiceDate   SortKey = "invoice_date"
	SortValue         SortKey = "value"
)

// Sort orders report rows
type Sort struct {
	Key      SortKey
	Desc     bool
	Currency valueobject.Currency
}

// DefaultSort is newest invoice date first
var DefaultSort = Sort{Key: SortInvoiceDate, Desc: true}

// sort value aliases by currency
var (
	sortValueLYD = Fields("total_remise_final_lyd", "total_remise_final_LYD", "total_remise_final_lyd_sum")
	sortValueEUR = Fields("totalAmountEur", "total_amount_eur", "total_remise_final_eur")
	sortValueUSD = Fields("total_remise_final")
)

// Apply sorts invoices in place and returns them. The sort is stable.
func (s Sort) Apply(invoices []*MergedInvoice) []*MergedInvoice {
	key := s.key()
	slices.SortStableFunc(invoices, func(a, b *MergedInvoice) int {
		c := key(a).Cmp(key(b))
		if s.Desc {
			return -c
		}
		return c
	})
	return invoices
}

func (s Sort) key() func(*MergedInvoice) decimal.Decimal {
	switch s.Key {
	case SortInvoiceNumber:
		return func(m *MergedInvoice) decimal.Decimal {
			return valueobject.OrZero(m.Number)
		}
	case SortDateCreated:
		return func(m *MergedInvoice) decimal.Decimal {
			if m.CreatedAt != nil {
				return decimal.NewFromInt(m.CreatedAt.UnixMilli())
			}
			return unixMillis(m.Date)
		}
	case SortValue:
		q := sortValueUSD
		switch s.Currency {
		case valueobject.LYD:
			q = sortValueLYD
		case valueobject.EUR:
			q = sortValueEUR
		}
		return func(m *MergedInvoice) decimal.Decimal { return q.OrZero(m.Fields) }
	default:
		return func(m *MergedInvoice) decimal.Decimal { return unixMillis(m.Date) }
	}
}

func unixMillis(t *time.Time) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(t.UnixMilli())
}

// PageInfo describes one page of a report
type PageInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate returns one page of invoices. Pages are 1-based; an out-of-range
// page is clamped to the last page.
func Paginate(invoices []*MergedInvoice, page, size int) ([]*MergedInvoice, PageInfo) {
	if size <= 0 {
		size = len(invoices)
		if size == 0 {
			size = 1
		}
	}
	total := len(invoices)
	pages := max(1, (total+size-1)/size)
	page = min(max(page, 1), pages)

	start := (page - 1) * size
	end := min(start+size, total)
	info := PageInfo{Page: page, PageSize: size, Total: total, TotalPages: pages}
	if start >= total {
		return []*MergedInvoice{}, info
	}
	return invoices[start:end], info
}
