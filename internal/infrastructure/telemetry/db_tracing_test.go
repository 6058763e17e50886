package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type journalRow struct {
	ID      uint   `gorm:"primaryKey"`
	NumFact string `gorm:"size:32"`
}

func (journalRow) TableName() string { return "close_attempts" }

func openJournalDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&journalRow{}))
	return db
}

func recordJournalSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestJournalTracer_Disabled(t *testing.T) {
	recorder := recordJournalSpans(t)
	db := openJournalDB(t)

	tracer := telemetry.NewJournalTracer(telemetry.JournalTracingConfig{Driver: "sqlite"}, nil)
	require.NoError(t, tracer.Register(db))

	require.NoError(t, db.Create(&journalRow{NumFact: "7001"}).Error)
	assert.Empty(t, recorder.Ended(), "no gorm spans without tracing")
}

func TestJournalTracer_Register(t *testing.T) {
	recorder := recordJournalSpans(t)
	db := openJournalDB(t)

	tracer := telemetry.NewJournalTracer(telemetry.JournalTracingConfig{
		Enabled:   true,
		Driver:    "sqlite",
		SlowQuery: time.Nanosecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, tracer.Register(db))

	ctx, parent := otel.Tracer("test").Start(context.Background(), "close.submit")
	require.NoError(t, db.WithContext(ctx).Create(&journalRow{NumFact: "7001"}).Error)
	var got journalRow
	require.NoError(t, db.WithContext(ctx).First(&got, "num_fact = ?", "7001").Error)
	parent.End()

	var journalSpans int
	for _, s := range recorder.Ended() {
		if s.Parent().SpanID() != parent.SpanContext().SpanID() {
			continue
		}
		journalSpans++

		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		assert.Equal(t, "close_attempts", attrs[telemetry.SpanAttrDBTable].AsString(), s.Name())
		assert.Equal(t, int64(1), attrs[telemetry.SpanAttrDBRows].AsInt64(), s.Name())
		assert.True(t, attrs[telemetry.SpanAttrDBSlow].AsBool(), s.Name())

		stmt := attrs["db.statement"].AsString()
		assert.NotContains(t, stmt, "7001", "bound values stay out of db.statement")
	}
	assert.Equal(t, 2, journalSpans, "one span each for the insert and the lookup")
}
