// Package report assembles the multi-shop sales report: it fans out line
// fetches, merges them into invoices and rolls the filtered set up.
package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AllPointsOfSale selects every shop listed by the backend
const AllPointsOfSale = "all"

const defaultMaxConcurrency = 8

// Gateway is the part of the backend API the report reads from
type Gateway interface {
	FetchInvoiceLines(ctx context.Context, ps, supplierType, usr string) ([]sales.Record, error)
	FetchWatchDetail(ctx context.Context, id string) (*sales.WatchDetail, error)
	ListPointsOfSale(ctx context.Context) ([]sales.PointOfSale, error)
}

// Service builds sales reports. Loads may overlap; only the newest one
// started may replace the latest snapshot.
type Service struct {
	gateway        Gateway
	watches        cache.WatchDetailCache
	calc           *sales.BalanceCalculator
	logger         *zap.Logger
	metrics        *telemetry.ReconMetrics
	maxConcurrency int
	defaultSeller  string
	now            func() time.Time

	generation atomic.Uint64

	mu         sync.Mutex
	latest     *Result
	primaryKey string
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records load and fetch metrics
func WithMetrics(m *telemetry.ReconMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxConcurrency bounds the number of in-flight backend requests per load
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithDefaultSeller sets the usr parameter used when a query names no seller
func WithDefaultSeller(usr string) Option {
	return func(s *Service) { s.defaultSeller = usr }
}

// NewService creates a report service. The watch cache belongs to the
// service: it is invalidated whenever the primary filter changes.
func NewService(gateway Gateway, watches cache.WatchDetailCache, opts ...Option) *Service {
	s := &Service{
		gateway:        gateway,
		watches:        watches,
		calc:           sales.NewBalanceCalculator(),
		logger:         zap.NewNop(),
		maxConcurrency: defaultMaxConcurrency,
		defaultSeller:  "-1",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("report")
	return s
}

// Query selects and shapes one report
type Query struct {
	// PointOfSale is a backend shop ID or AllPointsOfSale
	PointOfSale string
	// Seller is the usr parameter; empty uses the configured default
	Seller   string
	Filter   sales.Filter
	Sort     sales.Sort
	Page     int
	PageSize int
}

// FetchFailure is one (shop, type) request that degraded to no rows
type FetchFailure struct {
	PointOfSale  string `json:"ps"`
	SupplierType string `json:"type"`
	Error        string `json:"error"`
}

// InvoiceView is a merged invoice with its computed balance
type InvoiceView struct {
	*sales.MergedInvoice
	Balance       sales.InvoiceBalance `json:"balance"`
	PaymentStatus sales.PaymentStatus  `json:"payment_status"`
	SaleKinds     []sales.SaleKind     `json:"sale_kinds"`
}

// Result is an assembled report page
type Result struct {
	Generation uint64 `json:"generation"`
	// PointOfSale is the shop the report covers, or AllPointsOfSale
	PointOfSale string         `json:"ps"`
	Stale       bool           `json:"stale"`
	LoadedAt    time.Time      `json:"loaded_at"`
	Invoices    []InvoiceView  `json:"invoices"`
	Summary     sales.Summary  `json:"summary"`
	Page        sales.PageInfo `json:"page"`
	Failures    []FetchFailure `json:"failures,omitempty"`
}

// Load fetches, merges, filters and summarizes. Sub-request failures are
// logged and reported in Result.Failures; the load itself only fails when
// the shop list cannot be read. A load overtaken by a newer one is returned
// with Stale set and does not replace the latest snapshot.
func (s *Service) Load(ctx context.Context, q Query) (*Result, error) {
	gen := s.generation.Add(1)
	start := s.now()

	ctx, span := telemetry.StartServiceSpan(ctx, "report", "load")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrGeneration, gen,
		telemetry.SpanAttrPointOfSale, q.PointOfSale,
	)
	log := logger.WithLogger(ctx, s.logger).With(zap.Uint64("generation", gen))

	types := fetchTypes(q.Filter.Types)
	s.resetWatchesOnKeyChange(ctx, primaryKey(q, types, s.seller(q)))

	shops, err := s.shops(ctx, q.PointOfSale)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rows, failures := s.fetchLines(ctx, shops, types, s.seller(q))
	telemetry.SetAttributes(span, telemetry.SpanAttrRows, len(rows))

	// first pass finds the watch invoices, second pass resolves their designs
	invoices := sales.NewMerger(nil).Merge(rows).List()
	details := s.watchDetails(ctx, sales.WatchPicints(invoices))
	invoices = sales.NewMerger(details).Merge(rows).List()

	filtered := q.Filter.Apply(invoices)
	sortBy := q.Sort
	if sortBy.Key == "" {
		sortBy = sales.DefaultSort
	}
	sortBy.Apply(filtered)

	page, info := sales.Paginate(filtered, q.Page, q.PageSize)
	res := &Result{
		Generation:  gen,
		PointOfSale: q.PointOfSale,
		LoadedAt:    s.now().UTC(),
		Invoices:    s.views(page),
		Summary:     sales.Summarize(filtered),
		Page:        info,
		Failures:    failures,
	}

	res.Stale = !s.publish(res)
	if res.Stale {
		log.Info("report load overtaken by a newer one")
	}
	s.metrics.ReportLoaded(ctx, s.now().Sub(start), res.Stale)
	log.Debug("report loaded",
		zap.Int("rows", len(rows)),
		zap.Int("invoices", len(invoices)),
		zap.Int("matched", len(filtered)),
		zap.Int("failures", len(failures)),
	)
	return res, nil
}

// Latest returns the snapshot of the newest completed load
func (s *Service) Latest() (*Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// PointsOfSale lists the shops with normalized codes
func (s *Service) PointsOfSale(ctx context.Context) ([]sales.PointOfSale, error) {
	shops, err := s.gateway.ListPointsOfSale(ctx)
	if err != nil {
		return nil, fmt.Errorf("list points of sale: %w", err)
	}
	return shops, nil
}

// publish stores res as the latest snapshot if no newer load has started
func (s *Service) publish(res *Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Generation != s.generation.Load() {
		return false
	}
	if s.latest != nil && s.latest.Generation > res.Generation {
		return false
	}
	s.latest = res
	return true
}

func (s *Service) seller(q Query) string {
	if q.Seller != "" {
		return q.Seller
	}
	return s.defaultSeller
}

func (s *Service) resetWatchesOnKeyChange(ctx context.Context, key string) {
	s.mu.Lock()
	changed := s.primaryKey != "" && s.primaryKey != key
	s.primaryKey = key
	s.mu.Unlock()

	if !changed || s.watches == nil {
		return
	}
	if err := s.watches.Invalidate(ctx); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("watch cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) shops(ctx context.Context, ps string) ([]string, error) {
	if ps != "" && !strings.EqualFold(ps, AllPointsOfSale) {
		return []string{ps}, nil
	}
	list, err := s.gateway.ListPointsOfSale(ctx)
	if err != nil {
		return nil, fmt.Errorf("list points of sale: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

type fetchTask struct {
	ps  string
	typ sales.SupplierType
}

// fetchLines runs one request per (shop, type). Results are concatenated in
// task order so merging is deterministic.
func (s *Service) fetchLines(ctx context.Context, shops []string, types []sales.SupplierType, usr string) ([]sales.Record, []FetchFailure) {
	tasks := make([]fetchTask, 0, len(shops)*len(types))
	for _, ps := range shops {
		for _, t := range types {
			tasks = append(tasks, fetchTask{ps: ps, typ: t})
		}
	}

	results := make([][]sales.Record, len(tasks))
	errs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			rows, err := s.gateway.FetchInvoiceLines(gctx, task.ps, string(task.typ), usr)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	var (
		rows     []sales.Record
		failures []FetchFailure
	)
	for i, task := range tasks {
		if err := errs[i]; err != nil {
			logger.WithLogger(ctx, s.logger).Warn("invoice line fetch failed",
				zap.String("ps", task.ps),
				zap.String("type", string(task.typ)),
				zap.Error(err),
			)
			s.metrics.FetchFailed(ctx, task.ps, string(task.typ))
			failures = append(failures, FetchFailure{PointOfSale: task.ps, SupplierType: string(task.typ), Error: err.Error()})
			continue
		}
		rows = append(rows, results[i]...)
	}
	return rows, failures
}

// watchDetails resolves every picint through the cache, fetching the misses.
// A failed or empty fetch is cached as known-absent.
func (s *Service) watchDetails(ctx context.Context, picints []string) sales.WatchDetailMap {
	out := make(sales.WatchDetailMap, len(picints))
	var missing []string
	for _, id := range picints {
		if s.watches != nil {
			d, found, err := s.watches.Get(ctx, id)
			if err == nil && found {
				out[id] = d
				s.metrics.WatchLookup(ctx, "hit")
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	fetched := make([]*sales.WatchDetail, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, id := range missing {
		g.Go(func() error {
			d, err := s.gateway.FetchWatchDetail(gctx, id)
			if err != nil {
				logger.WithLogger(ctx, s.logger).Warn("watch detail fetch failed", zap.String("picint", id), zap.Error(err))
				return nil
			}
			fetched[i] = d
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range missing {
		d := fetched[i]
		out[id] = d
		if d == nil {
			s.metrics.WatchLookup(ctx, "absent")
		} else {
			s.metrics.WatchLookup(ctx, "fetched")
		}
		if s.watches != nil {
			if err := s.watches.Set(ctx, id, d); err != nil {
				logger.WithLogger(ctx, s.logger).Warn("watch cache write failed", zap.String("picint", id), zap.Error(err))
			}
		}
	}
	return out
}

func (s *Service) views(invoices []*sales.MergedInvoice) []InvoiceView {
	out := make([]InvoiceView, len(invoices))
	for i, inv := range invoices {
		out[i] = InvoiceView{
			MergedInvoice: inv,
			Balance:       s.calc.Compute(inv),
			PaymentStatus: sales.PaymentStatusOf(inv),
			SaleKinds:     sales.SaleKindsOf(inv),
		}
	}
	return out
}

// fetchTypes fetches the one selected type, or all three otherwise. "all"
// and blank entries are dropped before counting.
func fetchTypes(selected []string) []sales.SupplierType {
	var chosen []string
	for _, s := range selected {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, sales.TypeFilterAll) {
			continue
		}
		chosen = append(chosen, s)
	}
	if len(chosen) == 1 {
		if t := sales.ParseSupplierType(chosen[0]); t.IsValid() {
			return []sales.SupplierType{t}
		}
	}
	return sales.SupplierTypes
}

// primaryKey identifies the data a load fetches, as opposed to how it is shaped
func primaryKey(q Query, types []sales.SupplierType, usr string) string {
	ts := make([]string, len(types))
	for i, t := range types {
		ts[i] = string(t)
	}
	slices.Sort(ts)

	var from, to string
	if q.Filter.From != nil {
		from = q.Filter.From.Format(time.DateOnly)
	}
	if q.Filter.To != nil {
		to = q.Filter.To.Format(time.DateOnly)
	}
	return strings.Join([]string{strings.ToLower(q.PointOfSale), strings.Join(ts, ","), usr, from, to}, "|")
}
