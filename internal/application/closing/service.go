// Package closing drives the close-invoice dialog: it opens a validation
// session for one invoice, writes the accepted amounts to every backend row
// of the invoice, asks the backend to close it and journals the attempt.
package closing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/domain/shared"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/erp/salesrecon/internal/infrastructure/logger"
	"github.com/erp/salesrecon/internal/infrastructure/telemetry"
	"github.com/erp/salesrecon/internal/infrastructure/upstream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CodeCloseFailed marks a closure the backend refused
const CodeCloseFailed = "CLOSE_FAILED"

const defaultSessionTTL = 30 * time.Minute

const fallbackCloseMessage = "Failed to close invoice"

var (
	ErrSessionNotFound = shared.NewDomainError("NOT_FOUND", "Close session not found or expired")
	ErrInvoiceNotFound = shared.NewDomainError("NOT_FOUND", "Invoice not found")
	ErrSessionBusy     = shared.NewDomainError("CONFLICT", "Close session is being changed by another request")
)

// Gateway is the part of the backend API the close flow writes to
type Gateway interface {
	GetInvoice(ctx context.Context, ref sales.InvoiceRef) ([]sales.Record, error)
	UpdateLinePayment(ctx context.Context, lineID string, payment sales.PaymentEntry) error
	CloseInvoice(ctx context.Context, ref sales.InvoiceRef, makeCashVoucher bool, supplierType string) error
	ReturnToCart(ctx context.Context, numFact string) error
	UpdateSeller(ctx context.Context, numFact string, usr int64) error
}

// Service runs close sessions. Sessions live in a SessionStore between
// calls; the journal is optional.
type Service struct {
	gateway  Gateway
	sessions cache.SessionStore
	journal  sales.CloseAttemptRepository
	calc     *sales.BalanceCalculator
	logger   *zap.Logger
	metrics  *telemetry.ReconMetrics
	newID    func() string
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

// WithMetrics records close outcomes
func WithMetrics(m *telemetry.ReconMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithJournal records every submitted attempt
func WithJournal(repo sales.CloseAttemptRepository) Option {
	return func(s *Service) { s.journal = repo }
}

// NewService creates a close service. A nil store keeps sessions in memory.
func NewService(gateway Gateway, sessions cache.SessionStore, opts ...Option) *Service {
	if sessions == nil {
		sessions = cache.NewInMemorySessionStore(defaultSessionTTL)
	}
	s := &Service{
		gateway:  gateway,
		sessions: sessions,
		calc:     sales.NewBalanceCalculator(),
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("closing")
	return s
}

// SessionView is the client-facing state of a close session
type SessionView struct {
	ID           string               `json:"id"`
	State        sales.CloseState     `json:"state"`
	Invoice      sales.InvoiceRef     `json:"invoice"`
	SupplierType sales.SupplierType   `json:"supplier_type"`
	Recorded     sales.PaymentEntry   `json:"recorded"`
	Entry        sales.PaymentEntry   `json:"entry"`
	Balance      sales.InvoiceBalance `json:"balance"`
	RowIDs       []string             `json:"row_ids"`
	Outcome      *sales.CloseOutcome  `json:"outcome,omitempty"`
}

// SubmitOptions carries the closure flags chosen in the dialog
type SubmitOptions struct {
	MakeCashVoucher bool
	ActorID         string
}

// SubmitResult describes a completed closure
type SubmitResult struct {
	SessionID   string              `json:"session_id"`
	Invoice     sales.InvoiceRef    `json:"invoice"`
	Outcome     *sales.CloseOutcome `json:"outcome"`
	FailedLines []string            `json:"failed_lines,omitempty"`
	AttemptID   string              `json:"attempt_id,omitempty"`
}

// Open fetches the invoice rows and starts a session seeded with the
// amounts on file
func (s *Service) Open(ctx context.Context, ref sales.InvoiceRef) (*SessionView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "closing", "open")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPointOfSale, ref.PointOfSale,
		telemetry.SpanAttrInvoiceNumber, ref.Number,
	)

	if !ref.Complete() {
		return nil, sales.ErrInvoiceIdentifiersMissing
	}

	rows, err := s.gateway.GetInvoice(ctx, ref)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("get invoice %s: %w", ref.Number, err)
	}
	inv, rowIDs := invoiceFromRows(ref, rows)
	if inv == nil {
		return nil, ErrInvoiceNotFound.WithDetail("num_fact", ref.Number)
	}

	sess := sales.NewCloseSession(s.newID(), inv, s.calc)
	sess.SetRowIDs(rowIDs)
	if err := sess.Open(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Debug("close session opened",
		zap.String("session_id", sess.ID()),
		zap.String("num_fact", inv.Number),
		zap.Int("rows", len(rowIDs)),
	)
	return s.view(sess), nil
}

// invoiceFromRows fills identifiers the backend left out, merges the rows
// and returns the invoice matching ref with the id_fact of every row
func invoiceFromRows(ref sales.InvoiceRef, rows []sales.Record) (*sales.MergedInvoice, []string) {
	var (
		kept []sales.Record
		ids  []string
	)
	for _, row := range rows {
		if row == nil {
			continue
		}
		row = row.Clone()
		fillMissing(row, "ps", ref.PointOfSale)
		fillMissing(row, "usr", ref.Seller)
		fillMissing(row, "num_fact", ref.Number)
		if id := row.String("id_fact"); id != "" {
			ids = append(ids, id)
		}
		kept = append(kept, row)
	}
	invs := sales.NewMerger(nil).Merge(kept).List()
	if len(invs) == 0 {
		return nil, nil
	}
	for _, inv := range invs {
		if inv.Number == ref.Number {
			return inv, ids
		}
	}
	return invs[0], ids
}

func fillMissing(r sales.Record, key, value string) {
	if r.String(key) == "" && value != "" {
		r[key] = value
	}
}

// Get returns the current session state
func (s *Service) Get(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Enter replaces the entered amounts
func (s *Service) Enter(ctx context.Context, id string, entry sales.PaymentEntry) (*SessionView, error) {
	release, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State() == sales.CloseRejected {
		if err := sess.Resume(); err != nil {
			return nil, err
		}
	}
	if err := sess.Enter(entry); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Submit validates the entry and, when accepted, writes it to every row of
// the invoice and closes it. Row update failures are tolerated and reported;
// a refused closure returns the session to editing. The session is claimed
// for the whole call so a concurrent submit gets ErrSessionBusy.
func (s *Service) Submit(ctx context.Context, id string, opts SubmitOptions) (*SubmitResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "closing", "submit")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrSessionID, id)
	ctx = logger.WithSessionID(ctx, id)
	log := logger.WithLogger(ctx, s.logger)

	release, err := s.claim(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer release()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State() == sales.CloseRejected {
		if err := sess.Resume(); err != nil {
			return nil, err
		}
	}

	out, err := sess.Submit()
	if err != nil {
		if out == nil {
			return nil, err
		}
		return nil, s.rejected(ctx, sess, out, err, opts)
	}

	ref := sess.Invoice().Ref()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceNumber, ref.Number)

	failed := s.persistRows(ctx, sess, out.Payment)
	if len(failed) > 0 {
		log.Warn("some invoice rows were not updated",
			zap.String("num_fact", ref.Number),
			zap.Strings("failed_rows", failed),
		)
		s.metrics.LineUpdatesFailed(ctx, len(failed))
	}

	if err := s.gateway.CloseInvoice(ctx, ref, opts.MakeCashVoucher, closeType(sess.Invoice())); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.closeRefused(ctx, sess, out, opts, failed, err)
	}

	attempt := s.attempt(sess, sales.AttemptClosed, out, opts)
	attempt.FailedLines = failed
	s.record(ctx, attempt)
	s.metrics.CloseOutcome(ctx, string(sales.AttemptClosed), "")

	if err := s.sessions.Delete(ctx, sess.ID()); err != nil {
		log.Warn("failed to drop closed session", zap.Error(err))
	}
	log.Info("invoice closed",
		zap.String("num_fact", ref.Number),
		zap.String("ps", ref.PointOfSale),
		zap.Bool("cash_voucher", opts.MakeCashVoucher),
	)

	res := &SubmitResult{
		SessionID:   sess.ID(),
		Invoice:     ref,
		Outcome:     out,
		FailedLines: failed,
	}
	if s.journal != nil {
		res.AttemptID = attempt.ID.String()
	}
	return res, nil
}

// rejected journals a validation failure and leaves the session editable
func (s *Service) rejected(ctx context.Context, sess *sales.CloseSession, out *sales.CloseOutcome, violation error, opts SubmitOptions) error {
	code := ""
	if out.Violation != nil {
		code = out.Violation.Code
	}
	attempt := s.attempt(sess, sales.AttemptRejected, out, opts)
	attempt.ViolationCode = code
	if out.Violation != nil {
		attempt.Message = out.Violation.Message
	}
	s.record(ctx, attempt)
	s.metrics.CloseOutcome(ctx, string(sales.AttemptRejected), code)

	if err := sess.Resume(); err != nil {
		return err
	}
	if err := s.save(ctx, sess); err != nil {
		return err
	}
	return violation
}

// closeRefused turns a failed closure into CLOSE_FAILED and reopens the session
func (s *Service) closeRefused(ctx context.Context, sess *sales.CloseSession, out *sales.CloseOutcome, opts SubmitOptions, failed []string, cause error) error {
	msg := closeFailureMessage(cause)
	logger.WithLogger(ctx, s.logger).Warn("backend refused invoice closure",
		zap.String("num_fact", sess.Invoice().Number),
		zap.Error(cause),
	)

	attempt := s.attempt(sess, sales.AttemptFailed, out, opts)
	attempt.ViolationCode = CodeCloseFailed
	attempt.Message = msg
	attempt.FailedLines = failed
	s.record(ctx, attempt)
	s.metrics.CloseOutcome(ctx, string(sales.AttemptFailed), CodeCloseFailed)

	if err := sess.Reopen(); err != nil {
		return err
	}
	if err := s.save(ctx, sess); err != nil {
		return err
	}
	derr := shared.NewDomainError(CodeCloseFailed, msg)
	if len(failed) > 0 {
		derr = derr.WithDetail("failed_lines", failed)
	}
	return derr
}

// closeFailureMessage prefers the backend's own message
func closeFailureMessage(err error) string {
	var se *upstream.StatusError
	if errors.As(err, &se) && strings.TrimSpace(se.Message) != "" {
		return se.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallbackCloseMessage
}

// persistRows writes the payment to each row in order and returns the rows
// that could not be updated
func (s *Service) persistRows(ctx context.Context, sess *sales.CloseSession, payment sales.PaymentEntry) []string {
	log := logger.WithLogger(ctx, s.logger)
	var failed []string
	for _, rowID := range sess.RowIDs() {
		if err := s.gateway.UpdateLinePayment(ctx, rowID, payment); err != nil {
			log.Warn("failed to update invoice row",
				zap.String("id_fact", rowID),
				zap.Error(err),
			)
			failed = append(failed, rowID)
		}
	}
	return failed
}

// closeType is the Type parameter of the closure call
func closeType(inv *sales.MergedInvoice) string {
	if t := inv.Fields.FirstString("type", "Type"); t != "" {
		return t
	}
	return inv.SupplierType.String()
}

// Cancel abandons the session
func (s *Service) Cancel(ctx context.Context, id string) error {
	release, err := s.claim(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.Cancel(); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete close session: %w", err)
	}
	return nil
}

// ReturnToCart sends an invoice back to the cart
func (s *Service) ReturnToCart(ctx context.Context, numFact string) error {
	numFact = strings.TrimSpace(numFact)
	if numFact == "" {
		return shared.NewDomainError("INVALID_INPUT", "num_fact is required")
	}
	return s.gateway.ReturnToCart(ctx, numFact)
}

// UpdateSeller reassigns an invoice to another seller
func (s *Service) UpdateSeller(ctx context.Context, numFact string, usr int64) error {
	numFact = strings.TrimSpace(numFact)
	if numFact == "" {
		return shared.NewDomainError("INVALID_INPUT", "num_fact is required")
	}
	if usr <= 0 {
		return shared.NewDomainError("INVALID_INPUT", "usr must be a positive user id")
	}
	return s.gateway.UpdateSeller(ctx, numFact, usr)
}

// History lists the journaled attempts of one invoice, newest first
func (s *Service) History(ctx context.Context, ref sales.InvoiceRef) ([]sales.CloseAttempt, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.FindByInvoice(ctx, ref)
}

// Attempts queries the journal
func (s *Service) Attempts(ctx context.Context, filter sales.CloseAttemptFilter) ([]sales.CloseAttempt, int64, error) {
	if s.journal == nil {
		return nil, 0, nil
	}
	return s.journal.FindAll(ctx, filter)
}

func (s *Service) attempt(sess *sales.CloseSession, status sales.CloseAttemptStatus, out *sales.CloseOutcome, opts SubmitOptions) *sales.CloseAttempt {
	a := sales.NewCloseAttempt(sess.ID(), sess.Invoice().Ref(), status)
	a.SupplierType = sess.Invoice().SupplierType
	a.Payment = out.Payment
	a.Remainder = out.Remainder
	a.MakeCashVoucher = opts.MakeCashVoucher
	a.ActorID = opts.ActorID
	return a
}

// record writes to the journal. A journal failure never fails the close.
func (s *Service) record(ctx context.Context, a *sales.CloseAttempt) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(ctx, a); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("failed to journal close attempt",
			zap.String("session_id", a.SessionID),
			zap.String("status", string(a.Status)),
			zap.Error(err),
		)
	}
}

// claim takes the session for the caller. The returned func gives it back.
func (s *Service) claim(ctx context.Context, id string) (func(), error) {
	ok, err := s.sessions.Claim(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claim close session: %w", err)
	}
	if !ok {
		return nil, ErrSessionBusy.WithDetail("id", id)
	}
	return func() {
		// the request context may already be done
		if err := s.sessions.Release(context.WithoutCancel(ctx), id); err != nil {
			logger.WithLogger(ctx, s.logger).Warn("failed to release close session",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}, nil
}

func (s *Service) load(ctx context.Context, id string) (*sales.CloseSession, error) {
	snap, err := s.sessions.Load(ctx, id)
	if errors.Is(err, cache.ErrSessionNotFound) {
		return nil, ErrSessionNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load close session: %w", err)
	}
	return sales.RestoreCloseSession(*snap, s.calc), nil
}

func (s *Service) save(ctx context.Context, sess *sales.CloseSession) error {
	if err := s.sessions.Save(ctx, sess.Snapshot()); err != nil {
		return fmt.Errorf("save close session: %w", err)
	}
	return nil
}

func (s *Service) view(sess *sales.CloseSession) *SessionView {
	inv := sess.Invoice()
	return &SessionView{
		ID:           sess.ID(),
		State:        sess.State(),
		Invoice:      inv.Ref(),
		SupplierType: inv.SupplierType,
		Recorded:     sess.Recorded(),
		Entry:        sess.Entry(),
		Balance:      s.calc.Compute(inv),
		RowIDs:       sess.RowIDs(),
		Outcome:      sess.Outcome(),
	}
}
