package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/domain/shared"
	"github.com/erp/salesrecon/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultJournalPageSize = 20
	maxJournalPageSize     = 100
)

// GormCloseAttemptRepository implements sales.CloseAttemptRepository using GORM
type GormCloseAttemptRepository struct {
	db *gorm.DB
}

var _ sales.CloseAttemptRepository = (*GormCloseAttemptRepository)(nil)

// NewGormCloseAttemptRepository creates a new GormCloseAttemptRepository
func NewGormCloseAttemptRepository(db *gorm.DB) *GormCloseAttemptRepository {
	return &GormCloseAttemptRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCloseAttemptRepository) WithTx(tx *gorm.DB) *GormCloseAttemptRepository {
	return &GormCloseAttemptRepository{db: tx}
}

// Save appends an attempt to the journal. Entries are never updated.
func (r *GormCloseAttemptRepository) Save(ctx context.Context, attempt *sales.CloseAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(models.CloseAttemptModelFromDomain(attempt)).Error; err != nil {
		return fmt.Errorf("save close attempt: %w", err)
	}
	return nil
}

// FindByID finds an attempt by its ID
func (r *GormCloseAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.CloseAttempt, error) {
	var model models.CloseAttemptModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns one page of attempts matching filter and the total match count
func (r *GormCloseAttemptRepository) FindAll(ctx context.Context, filter sales.CloseAttemptFilter) ([]sales.CloseAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CloseAttemptModel{})
	if filter.InvoiceNumber != "" {
		query = query.Where("invoice_number = ?", filter.InvoiceNumber)
	}
	if filter.PointOfSale != "" {
		query = query.Where("point_of_sale = ?", filter.PointOfSale)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := journalPage(filter.Page, filter.PageSize)
	var rows []models.CloseAttemptModel
	err := query.
		Order(OrderClause(filter.OrderBy, filter.OrderDir, CloseAttemptSortFields, "created_at")).
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return toDomainAttempts(rows), total, nil
}

// FindByInvoice returns every attempt for an invoice, newest first
func (r *GormCloseAttemptRepository) FindByInvoice(ctx context.Context, ref sales.InvoiceRef) ([]sales.CloseAttempt, error) {
	var rows []models.CloseAttemptModel
	err := r.db.WithContext(ctx).
		Where("point_of_sale = ? AND invoice_number = ?", ref.PointOfSale, ref.Number).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainAttempts(rows), nil
}

func journalPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = defaultJournalPageSize
	case size > maxJournalPageSize:
		size = maxJournalPageSize
	}
	return page, size
}

func toDomainAttempts(rows []models.CloseAttemptModel) []sales.CloseAttempt {
	out := make([]sales.CloseAttempt, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}
