//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresJournal starts a throwaway Postgres, applies the embedded
// migrations and returns a GORM handle
func newPostgresJournal(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("salesrecon_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("recon123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.NewEmbedded(sqlDB, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())

	st, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), st.Version)
	assert.False(t, st.Dirty)
	return db
}

func TestCloseAttemptRepository_PostgresIntegration(t *testing.T) {
	db := newPostgresJournal(t)
	repo := NewGormCloseAttemptRepository(db)
	ctx := t.Context()

	closed := newAttempt("5001")
	closed.FailedLines = []string{"901"}
	require.NoError(t, repo.Save(ctx, closed))

	rejected := newAttempt("5001")
	rejected.Status = sales.AttemptRejected
	rejected.ViolationCode = sales.CodeOverpayment
	rejected.CreatedAt = closed.CreatedAt.Add(-time.Minute)
	require.NoError(t, repo.Save(ctx, rejected))

	got, err := repo.FindByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"901"}, got.FailedLines)
	assert.True(t, got.Payment.LYD.Equal(closed.Payment.LYD))

	history, err := repo.FindByInvoice(ctx, closed.Invoice)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, sales.AttemptClosed, history[0].Status)

	rows, total, err := repo.FindAll(ctx, sales.CloseAttemptFilter{Status: sales.AttemptRejected})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, sales.CodeOverpayment, rows[0].ViolationCode)
}

func TestCloseAttempts_StatusConstraint(t *testing.T) {
	db := newPostgresJournal(t)

	bad := newAttempt("5002")
	bad.Status = "pending"
	err := NewGormCloseAttemptRepository(db).Save(t.Context(), bad)
	assert.Error(t, err, "check constraint rejects unknown statuses")
}
