package sales

import (
	"time"

	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Raw line field names used outside the alias lists
const (
	keyInvoiceNumber = "num_fact"
	keyInvoiceID     = "id_fact"
	keyPicint        = "picint"
	keyLines         = "ACHATs"
	keySupplier      = "Fournisseur"
	keySupplierType  = "TYPE_SUPPLIER"
	keyInvoiceDate   = "date_fact"
	keyPointOfSale   = "ps"
	keySeller        = "usr"
	keyClosed        = "IS_OK"
	keyGift          = "IS_GIFT"
	keyChira         = "is_chira"
	keyWholesale     = "is_whole_sale"
	keyClient        = "Client"
	keySellerInfo    = "Utilisateur"
)

// InvoiceRef identifies an invoice to the backend's close endpoints
type InvoiceRef struct {
	PointOfSale string `json:"ps"`
	Seller      string `json:"usr"`
	Number      string `json:"num_fact"`
}

// Complete reports whether all identifying fields are present
func (r InvoiceRef) Complete() bool {
	return r.PointOfSale != "" && r.Seller != "" && r.Number != ""
}

// Customer is the buyer attached to an invoice
type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ProductDetail is one sold item of a merged invoice
type ProductDetail struct {
	Design          string            `json:"design"`
	Weight          string            `json:"weight,omitempty"`
	Code            string            `json:"code"`
	SupplierType    string            `json:"type_supplier"`
	Picint          string            `json:"picint,omitempty"`
	PurchaseID      string            `json:"id_achat,omitempty"`
	ImageID         string            `json:"image_id,omitempty"`
	Gift            bool              `json:"is_gift"`
	ExternalCode    string            `json:"code_external,omitempty"`
	UnitPrice       *decimal.Decimal  `json:"unit_price,omitempty"`
	PriceCandidates []decimal.Decimal `json:"price_candidates,omitempty"`
}

// WatchDetail is the model and serial of a watch purchase
type WatchDetail struct {
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
}

// WatchDetails resolves watch details by the invoice picture-integer
type WatchDetails interface {
	Lookup(picint string) (WatchDetail, bool)
}

// WatchDetailMap is a WatchDetails backed by a plain map
type WatchDetailMap map[string]*WatchDetail

// Lookup implements WatchDetails; nil entries mark known-absent details
func (m WatchDetailMap) Lookup(picint string) (WatchDetail, bool) {
	d, ok := m[picint]
	if !ok || d == nil {
		return WatchDetail{}, false
	}
	return *d, true
}

// MergedInvoice is the canonical view of one invoice number.
// Only the Merger constructs it.
type MergedInvoice struct {
	Key          string          `json:"key"`
	Number       string          `json:"num_fact"`
	Date         *time.Time      `json:"date_fact,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	PointOfSale  string          `json:"ps"`
	Seller       string          `json:"usr"`
	SellerName   string          `json:"seller_name,omitempty"`
	Customer     Customer        `json:"customer"`
	SupplierType SupplierType    `json:"supplier_type"`
	Closed       bool            `json:"is_ok"`
	Gift         bool            `json:"is_gift"`
	Chira        bool            `json:"is_chira"`
	Wholesale    bool            `json:"is_whole_sale"`
	Fields       Record          `json:"-"`
	Lines        []Record        `json:"-"`
	Products     []ProductDetail `json:"products"`
}

// Ref returns the identifiers used by the close endpoints
func (m *MergedInvoice) Ref() InvoiceRef {
	return InvoiceRef{PointOfSale: m.PointOfSale, Seller: m.Seller, Number: m.Number}
}

// HomeCurrency returns the invoice's pricing currency
func (m *MergedInvoice) HomeCurrency() valueobject.Currency {
	return HomeCurrency(m.SupplierType)
}

// HasGift reports whether the invoice or any of its items is a gift
func (m *MergedInvoice) HasGift() bool {
	if m.Gift {
		return true
	}
	for _, p := range m.Products {
		if p.Gift {
			return true
		}
	}
	return false
}

// NewInvoiceFromRecord builds an unmerged invoice view from one backend row.
// The close flow uses it for rows fetched individually.
func NewInvoiceFromRecord(r Record) *MergedInvoice {
	inv := &MergedInvoice{
		Key:    invoiceKey(r),
		Fields: r.Clone(),
		Lines:  r.Records(keyLines),
	}
	inv.refresh()
	return inv
}

// refresh derives the typed header fields from Fields and Lines
func (m *MergedInvoice) refresh() {
	r := m.Fields
	m.Number = r.String(keyInvoiceNumber)
	m.Date = parseTime(r.Get(keyInvoiceDate))
	m.CreatedAt = parseTime(firstTruthy(r.Get("d_time"), r.Get("created_at"), r.Get("createdAt")))
	m.PointOfSale = r.String(keyPointOfSale)
	m.Seller = r.String(keySeller)
	m.SellerName = r.Record(keySellerInfo).String("name_user")
	m.Closed = r.Bool(keyClosed)
	m.Gift = r.Bool(keyGift)
	m.Chira = r.Bool(keyChira)
	m.Wholesale = r.Bool(keyWholesale)
	m.Customer = customerOf(r)
	m.SupplierType = SupplierUnknown
	if len(m.Lines) > 0 {
		m.SupplierType = ParseSupplierType(lineSupplierTag(m.Lines[0]))
	}
}

func lineSupplierTag(line Record) string {
	return line.Record(keySupplier).String(keySupplierType)
}

func customerOf(r Record) Customer {
	c := r.Record(keyClient)
	if c == nil {
		c = r.Record("client")
	}
	cust := Customer{
		ID:    c.FirstString("id_client", "id"),
		Name:  c.FirstString("client_name", "name", "name_client"),
		Phone: c.FirstString("tel_client", "phone", "tel"),
	}
	if cust.Name == "" {
		cust.Name = r.FirstString("client_name", "clientName", "name_client")
	}
	return cust
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) *time.Time {
	s := stringify(v)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// WatchDetailFromRecord reads a watch purchase as returned by the backend
func WatchDetailFromRecord(r Record) WatchDetail {
	return WatchDetail{
		Model:        stringify(firstTruthy(r.Get("model"), r.Get("Model"))),
		SerialNumber: r.String("serial_number"),
	}
}

// WatchPicints lists the distinct picture-integers of watch invoices, in order
func WatchPicints(invs []*MergedInvoice) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, inv := range invs {
		if inv.SupplierType != SupplierWatch {
			continue
		}
		id := inv.Fields.String(keyPicint)
		if id == "" || id == "0" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
