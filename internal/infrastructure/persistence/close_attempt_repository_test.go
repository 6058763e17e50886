package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/domain/shared"
	"github.com/erp/salesrecon/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupJournalDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newAttempt(numFact string) *sales.CloseAttempt {
	a := sales.NewCloseAttempt("sess-"+numFact, sales.InvoiceRef{PointOfSale: "1", Seller: "7", Number: numFact}, sales.AttemptClosed)
	a.SupplierType = sales.SupplierGold
	a.Payment = sales.PaymentEntry{LYD: decimal.RequireFromString("1200.50")}
	a.MakeCashVoucher = true
	return a
}

func TestGormCloseAttemptRepository_SaveAndFind(t *testing.T) {
	db := setupJournalDB(t)
	repo := NewGormCloseAttemptRepository(db)
	ctx := t.Context()

	a := newAttempt("1001")
	a.Status = sales.AttemptFailed
	a.FailedLines = []string{"55", "56"}
	a.Message = "Invoice locked by another user"
	require.NoError(t, repo.Save(ctx, a))

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Invoice, got.Invoice)
	assert.Equal(t, sales.AttemptFailed, got.Status)
	assert.Equal(t, []string{"55", "56"}, got.FailedLines)
	assert.Equal(t, "Invoice locked by another user", got.Message)
	assert.True(t, got.Payment.LYD.Equal(decimal.RequireFromString("1200.5")), "got %s", got.Payment.LYD)
	assert.True(t, got.MakeCashVoucher)
}

func TestGormCloseAttemptRepository_SaveAssignsID(t *testing.T) {
	repo := NewGormCloseAttemptRepository(setupJournalDB(t))

	a := newAttempt("1002")
	a.ID = uuid.Nil
	require.NoError(t, repo.Save(t.Context(), a))
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestGormCloseAttemptRepository_FindByID_NotFound(t *testing.T) {
	repo := NewGormCloseAttemptRepository(setupJournalDB(t))

	_, err := repo.FindByID(t.Context(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormCloseAttemptRepository_FindAll(t *testing.T) {
	db := setupJournalDB(t)
	repo := NewGormCloseAttemptRepository(db)
	ctx := t.Context()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, tc := range []struct {
		num    string
		ps     string
		status sales.CloseAttemptStatus
	}{
		{"2001", "1", sales.AttemptRejected},
		{"2001", "1", sales.AttemptClosed},
		{"2002", "2", sales.AttemptClosed},
		{"2003", "2", sales.AttemptFailed},
	} {
		a := newAttempt(tc.num)
		a.Invoice.PointOfSale = tc.ps
		a.Status = tc.status
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, a))
	}

	t.Run("no filter returns newest first", func(t *testing.T) {
		rows, total, err := repo.FindAll(ctx, sales.CloseAttemptFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, rows, 4)
		assert.Equal(t, "2003", rows[0].Invoice.Number)
	})

	t.Run("filters by status and point of sale", func(t *testing.T) {
		rows, total, err := repo.FindAll(ctx, sales.CloseAttemptFilter{Status: sales.AttemptClosed, PointOfSale: "2"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, rows, 1)
		assert.Equal(t, "2002", rows[0].Invoice.Number)
	})

	t.Run("pages with whitelisted ordering", func(t *testing.T) {
		rows, total, err := repo.FindAll(ctx, sales.CloseAttemptFilter{Page: 2, PageSize: 3, OrderBy: "created_at", OrderDir: "asc"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, rows, 1)
		assert.Equal(t, "2003", rows[0].Invoice.Number)
	})

	t.Run("unknown order column falls back to created_at", func(t *testing.T) {
		rows, _, err := repo.FindAll(ctx, sales.CloseAttemptFilter{OrderBy: "message; DROP TABLE close_attempts"})
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})

	t.Run("FindByInvoice returns the attempts of one invoice", func(t *testing.T) {
		rows, err := repo.FindByInvoice(ctx, sales.InvoiceRef{PointOfSale: "1", Number: "2001"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, sales.AttemptClosed, rows[0].Status)
		assert.Equal(t, sales.AttemptRejected, rows[1].Status)
	})
}

func TestJournalPage(t *testing.T) {
	tests := []struct {
		name               string
		page, size         int
		wantPage, wantSize int
	}{
		{"defaults", 0, 0, 1, defaultJournalPageSize},
		{"negative page", -3, 10, 1, 10},
		{"size capped", 2, 1000, 2, maxJournalPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := journalPage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p)
			assert.Equal(t, tt.wantSize, s)
		})
	}
}

func TestGormCloseAttemptRepository_Postgres(t *testing.T) {
	t.Run("save issues a plain insert", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "close_attempts"`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewGormCloseAttemptRepository(db.DB).Save(t.Context(), newAttempt("3001")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save wraps driver errors", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "close_attempts"`).WillReturnError(errors.New("connection reset"))

		err := NewGormCloseAttemptRepository(db.DB).Save(t.Context(), newAttempt("3002"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "save close attempt")
	})

	t.Run("find by invoice filters on point of sale and number", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "close_attempts" WHERE point_of_sale = \$1 AND invoice_number = \$2 ORDER BY created_at DESC`).
			WithArgs("4", "3003").
			WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_number", "point_of_sale", "status"}).
				AddRow(uuid.NewString(), "3003", "4", "closed"))

		rows, err := NewGormCloseAttemptRepository(db.DB).FindByInvoice(t.Context(), sales.InvoiceRef{PointOfSale: "4", Number: "3003"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, sales.AttemptClosed, rows[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
