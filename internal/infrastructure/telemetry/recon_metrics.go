package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// ReconMetrics counts report loads and close attempts.
// A nil *ReconMetrics is valid and records nothing.
type ReconMetrics struct {
	reportLoads       *Counter
	reportStale       *Counter
	reportDuration    *Histogram
	fetchFailures     *Counter
	watchLookups      *Counter
	closeOutcomes     *Counter
	lineUpdateFailure *Counter
}

// NewReconMetrics registers the reconciliation instruments on meter.
func NewReconMetrics(meter metric.Meter) (*ReconMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &ReconMetrics{}
	var err error
	if m.reportLoads, err = NewCounter(meter, "recon_report_loads_total", "Completed sales report loads", "{loads}"); err != nil {
		return nil, err
	}
	if m.reportStale, err = NewCounter(meter, "recon_report_stale_total", "Report loads superseded by a newer load", "{loads}"); err != nil {
		return nil, err
	}
	if m.reportDuration, err = NewHistogram(meter, "recon_report_load_duration_seconds", "Wall time of a sales report load", "s", UpstreamDurationBuckets...); err != nil {
		return nil, err
	}
	if m.fetchFailures, err = NewCounter(meter, "recon_upstream_fetch_failures_total", "Line fetches that degraded to an empty result", "{requests}"); err != nil {
		return nil, err
	}
	if m.watchLookups, err = NewCounter(meter, "recon_watch_detail_lookups_total", "Watch detail lookups by outcome", "{lookups}"); err != nil {
		return nil, err
	}
	if m.closeOutcomes, err = NewCounter(meter, "recon_close_outcomes_total", "Close submissions by outcome", "{submissions}"); err != nil {
		return nil, err
	}
	if m.lineUpdateFailure, err = NewCounter(meter, "recon_line_update_failures_total", "Invoice line payment updates that failed", "{lines}"); err != nil {
		return nil, err
	}
	return m, nil
}

// ReportLoaded records one finished load.
func (m *ReconMetrics) ReportLoaded(ctx context.Context, d time.Duration, stale bool) {
	if m == nil {
		return
	}
	m.reportLoads.Inc(ctx)
	m.reportDuration.RecordDuration(ctx, d)
	if stale {
		m.reportStale.Inc(ctx)
	}
}

// FetchFailed records a degraded (ps, type) line fetch.
func (m *ReconMetrics) FetchFailed(ctx context.Context, ps, supplierType string) {
	if m == nil {
		return
	}
	m.fetchFailures.Inc(ctx, AttrPointOfSale.String(ps), AttrSupplierType.String(supplierType))
}

// WatchLookup records a watch detail lookup, outcome being hit, fetched or absent.
func (m *ReconMetrics) WatchLookup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.watchLookups.Inc(ctx, AttrOutcome.String(outcome))
}

// CloseOutcome records a submission. code is the violation code for rejections.
func (m *ReconMetrics) CloseOutcome(ctx context.Context, outcome, code string) {
	if m == nil {
		return
	}
	m.closeOutcomes.Inc(ctx, AttrOutcome.String(outcome), AttrCode.String(code))
}

// LineUpdatesFailed records n failed line updates for one close.
func (m *ReconMetrics) LineUpdatesFailed(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.lineUpdateFailure.Add(ctx, int64(n))
}
