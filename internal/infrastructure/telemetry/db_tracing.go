package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Journal span attributes set on top of otelgorm's db.* conventions
const (
	SpanAttrDBRows      = "db.rows_affected"
	SpanAttrDBTable     = "db.sql.table"
	SpanAttrDBSlow      = "db.slow_query"
	SpanAttrDBElapsedMS = "db.query_duration_ms"
)

// JournalTracingConfig controls tracing of the close audit journal.
type JournalTracingConfig struct {
	Enabled   bool
	Driver    string        // reported as db.system
	SlowQuery time.Duration // zero disables the slow-query flag
	// WithVariables puts bound values into db.statement. Attempt rows carry
	// payment amounts, so keep it off outside development.
	WithVariables bool
}

// JournalTracer instruments the journal's gorm handle.
type JournalTracer struct {
	cfg    JournalTracingConfig
	logger *zap.Logger
}

// NewJournalTracer returns a tracer for the journal database.
func NewJournalTracer(cfg JournalTracingConfig, logger *zap.Logger) *JournalTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalTracer{cfg: cfg, logger: logger}
}

// Register installs the timing hooks and then otelgorm on db. gorm runs
// hooks sharing an anchor in registration order, so the after hook sees the
// otelgorm span before it ends. A disabled tracer leaves db untouched.
func (j *JournalTracer) Register(db *gorm.DB) error {
	if !j.cfg.Enabled {
		j.logger.Debug("Journal tracing disabled")
		return nil
	}

	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("recon_timing:before_create", markStart),
		cb.Create().After("gorm:create").Register("recon_timing:after_create", j.finish),
		cb.Query().Before("gorm:query").Register("recon_timing:before_query", markStart),
		cb.Query().After("gorm:query").Register("recon_timing:after_query", j.finish),
		cb.Update().Before("gorm:update").Register("recon_timing:before_update", markStart),
		cb.Update().After("gorm:update").Register("recon_timing:after_update", j.finish),
		cb.Raw().Before("gorm:raw").Register("recon_timing:before_raw", markStart),
		cb.Raw().After("gorm:raw").Register("recon_timing:after_raw", j.finish),
	)
	if err != nil {
		return err
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(j.cfg.Driver)}
	if !j.cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	j.logger.Info("Journal tracing enabled",
		zap.String("db_system", j.cfg.Driver),
		zap.Duration("slow_query", j.cfg.SlowQuery),
		zap.Bool("with_variables", j.cfg.WithVariables),
	)
	return nil
}

type queryStartKey struct{}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (j *JournalTracer) finish(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64(SpanAttrDBRows, db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String(SpanAttrDBTable, db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok || j.cfg.SlowQuery <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > j.cfg.SlowQuery {
		span.SetAttributes(
			attribute.Bool(SpanAttrDBSlow, true),
			attribute.Int64(SpanAttrDBElapsedMS, elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("threshold_ms", j.cfg.SlowQuery.Milliseconds()),
		))
	}
}
