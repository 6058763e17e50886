package sales

import (
	"github.com/google/uuid"
)

// randomKeyPrefix marks rows that carried no usable identifier
const randomKeyPrefix = "rnd:"

// MergeResult is the merger output: invoices by key plus first-seen order
type MergeResult struct {
	Invoices map[string]*MergedInvoice
	Order    []string
}

// List returns the merged invoices in first-seen order
func (r MergeResult) List() []*MergedInvoice {
	out := make([]*MergedInvoice, 0, len(r.Order))
	for _, k := range r.Order {
		out = append(out, r.Invoices[k])
	}
	return out
}

// Len returns the number of merged invoices
func (r MergeResult) Len() int {
	return len(r.Order)
}

// Merger collapses the line rows returned by several point-of-sale and
// supplier-type queries into one invoice per invoice number.
type Merger struct {
	watches WatchDetails
}

// NewMerger creates a merger. A nil lookup leaves watch designs blank.
func NewMerger(watches WatchDetails) *Merger {
	if watches == nil {
		watches = WatchDetailMap{}
	}
	return &Merger{watches: watches}
}

// Merge groups rows by invoice key. Rows are never dropped: a row with no
// identifier at all gets a unique random key.
func (m *Merger) Merge(rows []Record) MergeResult {
	res := MergeResult{Invoices: make(map[string]*MergedInvoice, len(rows))}
	for _, row := range rows {
		if row == nil {
			continue
		}
		key := invoiceKey(row)
		cur, seen := res.Invoices[key]
		if !seen {
			cur = &MergedInvoice{
				Key:    key,
				Fields: row.Clone(),
				Lines:  append([]Record(nil), row.Records(keyLines)...),
			}
			res.Invoices[key] = cur
			res.Order = append(res.Order, key)
			continue
		}
		cur.Lines = append(cur.Lines, row.Records(keyLines)...)
		mergePreferred(cur.Fields, row)
	}

	for _, inv := range res.Invoices {
		inv.Fields[keyLines] = inv.Lines
		inv.refresh()
		inv.Products = m.products(inv)
	}
	return res
}

// invoiceKey picks num_fact, then id_fact, then picint
func invoiceKey(r Record) string {
	for _, k := range []string{keyInvoiceNumber, keyInvoiceID, keyPicint} {
		if s := r.String(k); s != "" {
			return s
		}
	}
	return randomKeyPrefix + uuid.NewString()
}

// mergePreferred fills absent financial fields from a later sighting.
// Present values are never replaced and never summed.
func mergePreferred(dst, src Record) {
	for _, f := range PreferFields {
		if !present(dst[f]) && present(src[f]) {
			dst[f] = src[f]
		}
	}
}

func (m *Merger) products(inv *MergedInvoice) []ProductDetail {
	if len(inv.Lines) == 0 {
		return nil
	}
	out := make([]ProductDetail, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		out = append(out, buildProduct(inv, line, m.watches))
	}
	return out
}
