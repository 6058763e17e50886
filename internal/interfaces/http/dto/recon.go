package dto

import (
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
)

// DateLayout is the format of report period bounds
const DateLayout = "2006-01-02"

// SalesReportRequest binds the sales report query string
type SalesReportRequest struct {
	PointOfSale   string   `form:"ps"`
	Seller        string   `form:"usr"`
	Types         []string `form:"type" binding:"omitempty,dive,supplier_type"`
	From          string   `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To            string   `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Search        string   `form:"search" binding:"omitempty,max=200"`
	Customer      string   `form:"customer" binding:"omitempty,max=200"`
	SaleKinds     []string `form:"sale_kind" binding:"omitempty,dive,oneof=Chira Gift Wholesale Normal"`
	PaymentStatus string   `form:"payment_status" binding:"omitempty,oneof=all paid unpaid partial"`
	RestOnly      bool     `form:"rest_only"`
	SortBy        string   `form:"sort_by" binding:"omitempty,oneof=invoice_number date_created invoice_date value"`
	SortDir       string   `form:"sort_dir" binding:"omitempty,oneof=asc desc"`
	Currency      string   `form:"currency" binding:"omitempty,oneof=LYD USD EUR"`
	Page          int      `form:"page" binding:"omitempty,min=1"`
	PageSize      int      `form:"page_size" binding:"omitempty,min=1,max=500"`
}

// Filter converts the request into a report filter. Dates were validated
// by binding; the upper bound covers the whole day.
func (r SalesReportRequest) Filter() sales.Filter {
	f := sales.Filter{
		Search:        r.Search,
		Customer:      r.Customer,
		Types:         r.Types,
		PaymentStatus: sales.PaymentStatus(r.PaymentStatus),
		RestOnly:      r.RestOnly,
	}
	if t, err := time.Parse(DateLayout, r.From); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(DateLayout, r.To); err == nil {
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	for _, k := range r.SaleKinds {
		f.SaleKinds = append(f.SaleKinds, sales.SaleKind(k))
	}
	return f
}

// Sort converts the sort parameters; an empty key means the default order
func (r SalesReportRequest) Sort() sales.Sort {
	return sales.Sort{
		Key:      sales.SortKey(r.SortBy),
		Desc:     r.SortDir != "asc",
		Currency: valueobject.Currency(r.Currency),
	}
}

// OpenCloseSessionRequest identifies the invoice to close
type OpenCloseSessionRequest struct {
	PointOfSale string `json:"ps" binding:"required,max=20"`
	Seller      string `json:"usr" binding:"required,max=20"`
	Number      string `json:"num_fact" binding:"required,max=50"`
}

// Ref returns the invoice identifiers
func (r OpenCloseSessionRequest) Ref() sales.InvoiceRef {
	return sales.InvoiceRef{PointOfSale: r.PointOfSale, Seller: r.Seller, Number: r.Number}
}

// PaymentEntryRequest carries the amounts as typed by the clerk. Empty or
// unparseable text counts as zero.
type PaymentEntryRequest struct {
	LYD    string `json:"amount_lyd" binding:"omitempty,amount"`
	USD    string `json:"amount_currency" binding:"omitempty,amount"`
	USDLYD string `json:"amount_currency_LYD" binding:"omitempty,amount"`
	EUR    string `json:"amount_EUR" binding:"omitempty,amount"`
	EURLYD string `json:"amount_EUR_LYD" binding:"omitempty,amount"`
}

// Entry parses the amounts
func (r PaymentEntryRequest) Entry() sales.PaymentEntry {
	return sales.ParsePaymentEntry(r.LYD, r.USD, r.USDLYD, r.EUR, r.EURLYD)
}

// SubmitCloseRequest carries the closure flags
type SubmitCloseRequest struct {
	MakeCashVoucher bool `json:"make_cash_voucher"`
}

// UpdateSellerRequest reassigns an invoice
type UpdateSellerRequest struct {
	Seller int64 `json:"usr" binding:"required,gt=0"`
}

// CloseAttemptListRequest filters the close journal
type CloseAttemptListRequest struct {
	ListRequest
	InvoiceNumber string `form:"num_fact"`
	PointOfSale   string `form:"ps"`
	Status        string `form:"status" binding:"omitempty,oneof=rejected closed failed"`
}

// ToFilter converts the request into a journal filter
func (r CloseAttemptListRequest) ToFilter() sales.CloseAttemptFilter {
	return sales.CloseAttemptFilter{
		InvoiceNumber: r.InvoiceNumber,
		PointOfSale:   r.PointOfSale,
		Status:        sales.CloseAttemptStatus(r.Status),
		Page:          r.Page,
		PageSize:      r.PageSize,
		OrderBy:       r.OrderBy,
		OrderDir:      r.OrderDir,
	}
}

// CloseAttemptResponse is one journal entry
type CloseAttemptResponse struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	Invoice         sales.InvoiceRef   `json:"invoice"`
	SupplierType    sales.SupplierType `json:"supplier_type"`
	Status          string             `json:"status"`
	Payment         sales.PaymentEntry `json:"payment"`
	Remainder       sales.Remainder    `json:"remainder"`
	ViolationCode   string             `json:"violation_code,omitempty"`
	Message         string             `json:"message,omitempty"`
	FailedLines     []string           `json:"failed_lines,omitempty"`
	MakeCashVoucher bool               `json:"make_cash_voucher"`
	ActorID         string             `json:"actor_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ToCloseAttemptResponse converts a journal entry
func ToCloseAttemptResponse(a sales.CloseAttempt) CloseAttemptResponse {
	return CloseAttemptResponse{
		ID:              a.ID.String(),
		SessionID:       a.SessionID,
		Invoice:         a.Invoice,
		SupplierType:    a.SupplierType,
		Status:          string(a.Status),
		Payment:         a.Payment,
		Remainder:       a.Remainder,
		ViolationCode:   a.ViolationCode,
		Message:         a.Message,
		FailedLines:     a.FailedLines,
		MakeCashVoucher: a.MakeCashVoucher,
		ActorID:         a.ActorID,
		CreatedAt:       a.CreatedAt,
	}
}

// ToCloseAttemptResponses converts a page of journal entries
func ToCloseAttemptResponses(attempts []sales.CloseAttempt) []CloseAttemptResponse {
	out := make([]CloseAttemptResponse, len(attempts))
	for i, a := range attempts {
		out[i] = ToCloseAttemptResponse(a)
	}
	return out
}
