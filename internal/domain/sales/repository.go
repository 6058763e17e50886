package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CloseAttemptStatus records how a close attempt ended
type CloseAttemptStatus string

const (
	AttemptRejected CloseAttemptStatus = "rejected"
	AttemptClosed   CloseAttemptStatus = "closed"
	AttemptFailed   CloseAttemptStatus = "failed"
)

// CloseAttempt is one audit journal entry for a submitted close session
type CloseAttempt struct {
	ID              uuid.UUID
	SessionID       string
	Invoice         InvoiceRef
	SupplierType    SupplierType
	Status          CloseAttemptStatus
	Payment         PaymentEntry
	Remainder       Remainder
	ViolationCode   string
	Message         string
	FailedLines     []string
	MakeCashVoucher bool
	ActorID         string
	CreatedAt       time.Time
}

// NewCloseAttempt creates a journal entry stamped now
func NewCloseAttempt(sessionID string, ref InvoiceRef, status CloseAttemptStatus) *CloseAttempt {
	return &CloseAttempt{
		ID:        uuid.New(),
		SessionID: sessionID,
		Invoice:   ref,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// CloseAttemptFilter narrows journal queries
type CloseAttemptFilter struct {
	InvoiceNumber string
	PointOfSale   string
	Status        CloseAttemptStatus
	Page          int
	PageSize      int
	OrderBy       string
	OrderDir      string
}

// CloseAttemptRepository persists the close audit journal
type CloseAttemptRepository interface {
	Save(ctx context.Context, attempt *CloseAttempt) error
	FindByID(ctx context.Context, id uuid.UUID) (*CloseAttempt, error)
	FindAll(ctx context.Context, filter CloseAttemptFilter) ([]CloseAttempt, int64, error)
	FindByInvoice(ctx context.Context, ref InvoiceRef) ([]CloseAttempt, error)
}
