package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erp/salesrecon/internal/domain/sales"
)

// FetchInvoiceLines returns the raw invoice-line rows for one point of sale
// and supplier type. An empty usr means every seller.
func (c *Client) FetchInvoiceLines(ctx context.Context, ps, supplierType, usr string) ([]sales.Record, error) {
	if usr == "" {
		usr = c.defaultUser
	}
	q := url.Values{}
	q.Set("ps", ps)
	q.Set("type", supplierType)
	q.Set("usr", usr)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/invoices/allDetailsP", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeRows(raw)
}

// FetchWatchDetail returns the watch purchase for a picture-integer.
// The backend answers with either an object or a list.
func (c *Client) FetchWatchDetail(ctx context.Context, id string) (*sales.WatchDetail, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/WOpurchases/getitem/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	d := sales.WatchDetailFromRecord(rows[0])
	return &d, nil
}

// ListPointsOfSale returns every shop known to the backend
func (c *Client) ListPointsOfSale(ctx context.Context) ([]sales.PointOfSale, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/ps/all", nil, nil, &raw); err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}
	out := make([]sales.PointOfSale, 0, len(rows))
	for _, r := range rows {
		if ps := sales.PointOfSaleFromRecord(r); ps.ID != "" {
			out = append(out, ps)
		}
	}
	return out, nil
}

// GetInvoice returns the current rows of one invoice
func (c *Client) GetInvoice(ctx context.Context, ref sales.InvoiceRef) ([]sales.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/invoices/Getinvoice/", refQuery(ref), nil, &raw); err != nil {
		return nil, err
	}
	return decodeRows(raw)
}

// UpdateLinePayment writes the entered amounts onto one invoice row
func (c *Client) UpdateLinePayment(ctx context.Context, lineID string, payment sales.PaymentEntry) error {
	return c.do(ctx, http.MethodPut, "/invoices/Update/"+url.PathEscape(lineID), nil, linePaymentBody(payment), nil)
}

// linePaymentBody renders the amounts as JSON numbers, rounded to cents
func linePaymentBody(p sales.PaymentEntry) map[string]json.Number {
	r := p.Rounded()
	return map[string]json.Number{
		"amount_lyd":          json.Number(r.LYD.StringFixed(2)),
		"amount_currency":     json.Number(r.USD.StringFixed(2)),
		"amount_currency_LYD": json.Number(r.USDLYD.StringFixed(2)),
		"amount_EUR":          json.Number(r.EUR.StringFixed(2)),
		"amount_EUR_LYD":      json.Number(r.EURLYD.StringFixed(2)),
	}
}

// CloseInvoice closes the invoice and posts it to the ledger
func (c *Client) CloseInvoice(ctx context.Context, ref sales.InvoiceRef, makeCashVoucher bool, supplierType string) error {
	q := refQuery(ref)
	q.Set("MakeCashVoucher", strconv.FormatBool(makeCashVoucher))
	q.Set("Type", supplierType)
	return c.do(ctx, http.MethodGet, "/invoices/CloseNF", q, nil, nil)
}

// ReturnToCart reopens an issued invoice as a cart
func (c *Client) ReturnToCart(ctx context.Context, numFact string) error {
	return c.do(ctx, http.MethodPut, "/invoices/ReturnToCart/"+url.PathEscape(numFact), nil, struct{}{}, nil)
}

// UpdateSeller reassigns the invoice to another seller
func (c *Client) UpdateSeller(ctx context.Context, numFact string, usr int64) error {
	body := map[string]int64{"usr": usr}
	return c.do(ctx, http.MethodPut, "/invoices/UpdateUserByNumFact/"+url.PathEscape(numFact), nil, body, nil)
}

func refQuery(ref sales.InvoiceRef) url.Values {
	q := url.Values{}
	q.Set("ps", ref.PointOfSale)
	q.Set("usr", ref.Seller)
	q.Set("num_fact", ref.Number)
	return q
}

// decodeRows accepts a list, a single object, or an object wrapping a data list
func decodeRows(raw json.RawMessage) ([]sales.Record, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return recordsOf(x), nil
	case map[string]any:
		if list, ok := x["data"].([]any); ok {
			return recordsOf(list), nil
		}
		return []sales.Record{sales.Record(x)}, nil
	default:
		return nil, fmt.Errorf("upstream: unexpected payload %T", v)
	}
}

func recordsOf(list []any) []sales.Record {
	out := make([]sales.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, sales.Record(m))
		}
	}
	return out
}

func decodeAny(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("upstream: decode: %w", err)
	}
	return v, nil
}
