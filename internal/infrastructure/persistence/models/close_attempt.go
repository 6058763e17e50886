// Package models holds the GORM persistence models of the audit journal.
package models

import (
	"strings"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CloseAttemptModel is the persistence model for sales.CloseAttempt
type CloseAttemptModel struct {
	ID              uuid.UUID       `gorm:"type:char(36);primaryKey"`
	SessionID       string          `gorm:"type:varchar(64);not null;index:idx_close_attempts_session"`
	PointOfSale     string          `gorm:"type:varchar(32);not null;index:idx_close_attempts_invoice,priority:1"`
	Seller          string          `gorm:"type:varchar(32);not null"`
	InvoiceNumber   string          `gorm:"type:varchar(64);not null;index:idx_close_attempts_invoice,priority:2"`
	SupplierType    string          `gorm:"type:varchar(16);not null"`
	Status          string          `gorm:"type:varchar(16);not null;index:idx_close_attempts_status"`
	AmountLYD       decimal.Decimal `gorm:"column:amount_lyd;type:decimal(18,2);not null"`
	AmountUSD       decimal.Decimal `gorm:"column:amount_usd;type:decimal(18,2);not null"`
	AmountUSDLYD    decimal.Decimal `gorm:"column:amount_usd_lyd;type:decimal(18,2);not null"`
	AmountEUR       decimal.Decimal `gorm:"column:amount_eur;type:decimal(18,2);not null"`
	AmountEURLYD    decimal.Decimal `gorm:"column:amount_eur_lyd;type:decimal(18,2);not null"`
	RemainderLYD    decimal.Decimal `gorm:"column:remainder_lyd;type:decimal(18,2);not null"`
	RemainderUSD    decimal.Decimal `gorm:"column:remainder_usd;type:decimal(18,2);not null"`
	RemainderEUR    decimal.Decimal `gorm:"column:remainder_eur;type:decimal(18,2);not null"`
	ViolationCode   string          `gorm:"type:varchar(64);not null"`
	Message         string          `gorm:"type:text;not null"`
	FailedLines     string          `gorm:"type:text;not null"`
	MakeCashVoucher bool            `gorm:"not null"`
	ActorID         string          `gorm:"type:varchar(64);not null"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_close_attempts_created_at"`
}

// TableName returns the table name for GORM
func (CloseAttemptModel) TableName() string {
	return "close_attempts"
}

// failed line IDs are stored comma separated; backend line IDs are numeric
const failedLineSep = ","

// ToDomain converts the model to a domain CloseAttempt
func (m *CloseAttemptModel) ToDomain() *sales.CloseAttempt {
	a := &sales.CloseAttempt{
		ID:        m.ID,
		SessionID: m.SessionID,
		Invoice: sales.InvoiceRef{
			PointOfSale: m.PointOfSale,
			Seller:      m.Seller,
			Number:      m.InvoiceNumber,
		},
		SupplierType: sales.SupplierType(m.SupplierType),
		Status:       sales.CloseAttemptStatus(m.Status),
		Payment: sales.PaymentEntry{
			LYD:    m.AmountLYD,
			USD:    m.AmountUSD,
			USDLYD: m.AmountUSDLYD,
			EUR:    m.AmountEUR,
			EURLYD: m.AmountEURLYD,
		},
		Remainder: sales.Remainder{
			LYD: m.RemainderLYD,
			USD: m.RemainderUSD,
			EUR: m.RemainderEUR,
		},
		ViolationCode:   m.ViolationCode,
		Message:         m.Message,
		MakeCashVoucher: m.MakeCashVoucher,
		ActorID:         m.ActorID,
		CreatedAt:       m.CreatedAt,
	}
	if m.FailedLines != "" {
		a.FailedLines = strings.Split(m.FailedLines, failedLineSep)
	}
	return a
}

// FromDomain populates the model from a domain CloseAttempt
func (m *CloseAttemptModel) FromDomain(a *sales.CloseAttempt) {
	m.ID = a.ID
	m.SessionID = a.SessionID
	m.PointOfSale = a.Invoice.PointOfSale
	m.Seller = a.Invoice.Seller
	m.InvoiceNumber = a.Invoice.Number
	m.SupplierType = string(a.SupplierType)
	m.Status = string(a.Status)
	m.AmountLYD = a.Payment.LYD
	m.AmountUSD = a.Payment.USD
	m.AmountUSDLYD = a.Payment.USDLYD
	m.AmountEUR = a.Payment.EUR
	m.AmountEURLYD = a.Payment.EURLYD
	m.RemainderLYD = a.Remainder.LYD
	m.RemainderUSD = a.Remainder.USD
	m.RemainderEUR = a.Remainder.EUR
	m.ViolationCode = a.ViolationCode
	m.Message = a.Message
	m.FailedLines = strings.Join(a.FailedLines, failedLineSep)
	m.MakeCashVoucher = a.MakeCashVoucher
	m.ActorID = a.ActorID
	m.CreatedAt = a.CreatedAt
}

// CloseAttemptModelFromDomain creates a model from a domain CloseAttempt
func CloseAttemptModelFromDomain(a *sales.CloseAttempt) *CloseAttemptModel {
	m := &CloseAttemptModel{}
	m.FromDomain(a)
	return m
}

// All returns every model AutoMigrate should create
func All() []any {
	return []any{&CloseAttemptModel{}}
}
