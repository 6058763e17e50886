package closing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
	"github.com/erp/salesrecon/internal/domain/shared"
	"github.com/erp/salesrecon/internal/infrastructure/cache"
	"github.com/erp/salesrecon/internal/infrastructure/upstream"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetInvoice(ctx context.Context, ref sales.InvoiceRef) ([]sales.Record, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sales.Record), args.Error(1)
}

func (m *MockGateway) UpdateLinePayment(ctx context.Context, lineID string, payment sales.PaymentEntry) error {
	args := m.Called(ctx, lineID, payment)
	return args.Error(0)
}

func (m *MockGateway) CloseInvoice(ctx context.Context, ref sales.InvoiceRef, makeCashVoucher bool, supplierType string) error {
	args := m.Called(ctx, ref, makeCashVoucher, supplierType)
	return args.Error(0)
}

func (m *MockGateway) ReturnToCart(ctx context.Context, numFact string) error {
	args := m.Called(ctx, numFact)
	return args.Error(0)
}

func (m *MockGateway) UpdateSeller(ctx context.Context, numFact string, usr int64) error {
	args := m.Called(ctx, numFact, usr)
	return args.Error(0)
}

// MockCloseAttemptRepository is a mock implementation of sales.CloseAttemptRepository
type MockCloseAttemptRepository struct {
	mock.Mock
}

func (m *MockCloseAttemptRepository) Save(ctx context.Context, attempt *sales.CloseAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockCloseAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.CloseAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sales.CloseAttempt), args.Error(1)
}

func (m *MockCloseAttemptRepository) FindAll(ctx context.Context, filter sales.CloseAttemptFilter) ([]sales.CloseAttempt, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]sales.CloseAttempt), args.Get(1).(int64), args.Error(2)
}

func (m *MockCloseAttemptRepository) FindByInvoice(ctx context.Context, ref sales.InvoiceRef) ([]sales.CloseAttempt, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).([]sales.CloseAttempt), args.Error(1)
}

var testRef = sales.InvoiceRef{PointOfSale: "1", Seller: "7", Number: "7001"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// diamondRows is a 1000 USD invoice split over two backend rows with
// 600 USD recorded at 5 LYD per USD. The second row omits ps and usr.
func diamondRows() []sales.Record {
	line := func(id string) []any {
		return []any{map[string]any{
			"id_fact":     id,
			"Design_art":  "Solitaire " + id,
			"Fournisseur": map[string]any{"TYPE_SUPPLIER": "Diamond Supplier"},
		}}
	}
	return []sales.Record{
		{
			"id_fact":             "901",
			"num_fact":            "7001",
			"ps":                  "1",
			"usr":                 "7",
			"type":                "diamond",
			"total_remise_final":  1000,
			"amount_currency":     600,
			"amount_currency_LYD": 3000,
			"ACHATs":              line("901"),
		},
		{
			"id_fact":  "902",
			"num_fact": "7001",
			"ACHATs":   line("902"),
		},
	}
}

func usdPayment(usd, usdLYD string) any {
	return mock.MatchedBy(func(p sales.PaymentEntry) bool {
		return p.USD.Equal(dec(usd)) && p.USDLYD.Equal(dec(usdLYD))
	})
}

type fixture struct {
	gateway *MockGateway
	journal *MockCloseAttemptRepository
	store   *cache.InMemorySessionStore
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway: new(MockGateway),
		journal: new(MockCloseAttemptRepository),
		store:   cache.NewInMemorySessionStore(time.Minute),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.svc = NewService(f.gateway, f.store,
		WithJournal(f.journal),
		WithLogger(zaptest.NewLogger(t)),
	)
	return f
}

func (f *fixture) open(t *testing.T) *SessionView {
	t.Helper()
	f.gateway.On("GetInvoice", mock.Anything, testRef).Return(diamondRows(), nil).Once()
	view, err := f.svc.Open(t.Context(), testRef)
	require.NoError(t, err)
	return view
}

func journaled(status sales.CloseAttemptStatus) any {
	return mock.MatchedBy(func(a *sales.CloseAttempt) bool { return a.Status == status })
}

func TestService_Open(t *testing.T) {
	t.Run("seeds the entry from the recorded amounts", func(t *testing.T) {
		f := newFixture(t)
		view := f.open(t)

		assert.NotEmpty(t, view.ID)
		assert.Equal(t, sales.CloseEditing, view.State)
		assert.Equal(t, testRef, view.Invoice)
		assert.Equal(t, sales.SupplierDiamond, view.SupplierType)
		assert.Equal(t, []string{"901", "902"}, view.RowIDs)
		assert.True(t, view.Entry.USD.Equal(dec("600")))
		assert.True(t, view.Entry.USDLYD.Equal(dec("3000")))
		assert.True(t, view.Balance.USD.Remaining.Equal(dec("400")))

		_, err := f.store.Load(t.Context(), view.ID)
		assert.NoError(t, err, "session is stored")
	})

	t.Run("rejects incomplete identifiers without calling the backend", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Open(t.Context(), sales.InvoiceRef{PointOfSale: "1", Number: "7001"})
		assert.ErrorIs(t, err, sales.ErrInvoiceIdentifiersMissing)
		f.gateway.AssertNotCalled(t, "GetInvoice", mock.Anything, mock.Anything)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("GetInvoice", mock.Anything, testRef).Return([]sales.Record{}, nil)

		_, err := f.svc.Open(t.Context(), testRef)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("wraps backend errors", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("GetInvoice", mock.Anything, testRef).Return(nil, errors.New("connection refused"))

		_, err := f.svc.Open(t.Context(), testRef)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "get invoice 7001")
	})

	t.Run("closed invoice cannot be opened", func(t *testing.T) {
		f := newFixture(t)
		rows := diamondRows()
		rows[0]["IS_OK"] = true
		f.gateway.On("GetInvoice", mock.Anything, testRef).Return(rows, nil)

		_, err := f.svc.Open(t.Context(), testRef)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestService_Submit_ClosesInvoice(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	f.gateway.On("UpdateLinePayment", mock.Anything, "901", usdPayment("600", "3000")).Return(nil).Once()
	f.gateway.On("UpdateLinePayment", mock.Anything, "902", usdPayment("600", "3000")).Return(nil).Once()
	f.gateway.On("CloseInvoice", mock.Anything, testRef, true, "diamond").Return(nil).Once()
	f.journal.On("Save", mock.Anything, journaled(sales.AttemptClosed)).Return(nil).Once()

	res, err := f.svc.Submit(t.Context(), view.ID, SubmitOptions{MakeCashVoucher: true, ActorID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, testRef, res.Invoice)
	assert.Equal(t, sales.CloseAccepted, res.Outcome.State)
	assert.True(t, res.Outcome.Remainder.IsZero())
	assert.True(t, res.Outcome.Outstanding.USD.Remaining.Equal(dec("400")))
	assert.Empty(t, res.FailedLines)
	assert.NotEmpty(t, res.AttemptID)

	f.gateway.AssertExpectations(t)
	f.journal.AssertExpectations(t)

	saved := f.journal.Calls[0].Arguments.Get(1).(*sales.CloseAttempt)
	assert.Equal(t, "u-1", saved.ActorID)
	assert.True(t, saved.MakeCashVoucher)
	assert.Equal(t, sales.SupplierDiamond, saved.SupplierType)

	_, err = f.svc.Get(t.Context(), view.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "closed sessions are dropped")
}

func TestService_Submit_RowFailuresDoNotStopClosure(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	f.gateway.On("UpdateLinePayment", mock.Anything, "901", mock.Anything).Return(errors.New("row locked")).Once()
	f.gateway.On("UpdateLinePayment", mock.Anything, "902", mock.Anything).Return(nil).Once()
	f.gateway.On("CloseInvoice", mock.Anything, testRef, false, "diamond").Return(nil).Once()
	f.journal.On("Save", mock.Anything, mock.MatchedBy(func(a *sales.CloseAttempt) bool {
		return a.Status == sales.AttemptClosed && len(a.FailedLines) == 1 && a.FailedLines[0] == "901"
	})).Return(nil).Once()

	res, err := f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"901"}, res.FailedLines)

	f.gateway.AssertExpectations(t)
	f.journal.AssertExpectations(t)
}

func TestService_Submit_RefusedClosureReopensSession(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	f.gateway.On("UpdateLinePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("CloseInvoice", mock.Anything, testRef, false, "diamond").
		Return(&upstream.StatusError{Method: "GET", Path: "/invoices/CloseNF", StatusCode: 409, Message: "Invoice locked by another user"}).Once()
	f.journal.On("Save", mock.Anything, mock.MatchedBy(func(a *sales.CloseAttempt) bool {
		return a.Status == sales.AttemptFailed && a.ViolationCode == CodeCloseFailed && a.Message == "Invoice locked by another user"
	})).Return(nil).Once()

	_, err := f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.Error(t, err)

	var derr *shared.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, CodeCloseFailed, derr.Code)
	assert.Equal(t, "Invoice locked by another user", derr.Message)

	got, err := f.svc.Get(t.Context(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.CloseEditing, got.State)
	f.journal.AssertExpectations(t)

	// a retry goes through the whole flow again
	f.gateway.On("CloseInvoice", mock.Anything, testRef, false, "diamond").Return(nil).Once()
	f.journal.On("Save", mock.Anything, journaled(sales.AttemptClosed)).Return(nil).Once()
	_, err = f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.NoError(t, err)
	f.gateway.AssertNumberOfCalls(t, "UpdateLinePayment", 4)
}

func TestService_Submit_ConcurrentSubmitIsRefused(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	f.gateway.On("UpdateLinePayment", mock.Anything, "901", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-unblock
		}).Return(nil).Once()
	f.gateway.On("UpdateLinePayment", mock.Anything, "902", mock.Anything).Return(nil).Once()
	f.gateway.On("CloseInvoice", mock.Anything, testRef, true, "diamond").Return(nil).Once()
	f.journal.On("Save", mock.Anything, journaled(sales.AttemptClosed)).Return(nil).Once()

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), view.ID, SubmitOptions{MakeCashVoucher: true})
		firstErr <- err
	}()
	<-entered

	_, err := f.svc.Submit(t.Context(), view.ID, SubmitOptions{MakeCashVoucher: true})
	assert.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.svc.Enter(t.Context(), view.ID, sales.PaymentEntry{})
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.ErrorIs(t, f.svc.Cancel(t.Context(), view.ID), shared.ErrConflict)

	close(unblock)
	require.NoError(t, <-firstErr)

	f.gateway.AssertNumberOfCalls(t, "CloseInvoice", 1)
	f.journal.AssertNumberOfCalls(t, "Save", 1)

	// once the winner is done the session is gone, not busy
	_, err = f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestService_Submit_RejectionReleasesClaim(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)
	_, err := f.svc.Enter(t.Context(), view.ID, sales.ParsePaymentEntry("", "700", "", "", ""))
	require.NoError(t, err)
	f.journal.On("Save", mock.Anything, journaled(sales.AttemptRejected)).Return(nil).Once()

	_, err = f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.ErrorIs(t, err, sales.ErrOverpayment)

	ok, err := f.store.Claim(t.Context(), view.ID)
	require.NoError(t, err)
	assert.True(t, ok, "a rejected submit gives the session back")
}

func TestService_Submit_OverpaymentKeepsSessionOpen(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	_, err := f.svc.Enter(t.Context(), view.ID, sales.ParsePaymentEntry("", "700", "", "", ""))
	require.NoError(t, err)

	f.journal.On("Save", mock.Anything, mock.MatchedBy(func(a *sales.CloseAttempt) bool {
		return a.Status == sales.AttemptRejected && a.ViolationCode == sales.CodeOverpayment
	})).Return(nil).Once()

	_, err = f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	assert.ErrorIs(t, err, sales.ErrOverpayment)
	f.gateway.AssertNotCalled(t, "UpdateLinePayment", mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "CloseInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	got, err := f.svc.Get(t.Context(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.CloseEditing, got.State)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, sales.CloseRejected, got.Outcome.State)
	assert.True(t, got.Entry.USD.Equal(dec("700")), "entry is kept for correction")

	got, err = f.svc.Enter(t.Context(), view.ID, sales.ParsePaymentEntry("", "600", "", "", ""))
	require.NoError(t, err)
	assert.True(t, got.Entry.USDLYD.Equal(dec("3000")))
}

func TestService_Submit_MissingEquivalent(t *testing.T) {
	f := newFixture(t)
	rows := diamondRows()
	rows[0]["amount_EUR"] = 100
	f.gateway.On("GetInvoice", mock.Anything, testRef).Return(rows, nil)
	f.journal.On("Save", mock.Anything, journaled(sales.AttemptRejected)).Return(nil)

	view, err := f.svc.Open(t.Context(), testRef)
	require.NoError(t, err)
	_, err = f.svc.Enter(t.Context(), view.ID, sales.ParsePaymentEntry("", "600", "3000", "50", ""))
	require.NoError(t, err)

	_, err = f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	assert.ErrorIs(t, err, sales.ErrEUREquivalentMissing)
}

func TestService_Submit_JournalFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	f.gateway.On("UpdateLinePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("CloseInvoice", mock.Anything, testRef, false, "diamond").Return(nil)
	f.journal.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	res, err := f.svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, sales.CloseAccepted, res.Outcome.State)
}

func TestService_Submit_WithoutJournal(t *testing.T) {
	gw := new(MockGateway)
	svc := NewService(gw, nil)
	gw.On("GetInvoice", mock.Anything, testRef).Return(diamondRows(), nil)
	gw.On("UpdateLinePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gw.On("CloseInvoice", mock.Anything, testRef, false, "diamond").Return(nil)

	view, err := svc.Open(t.Context(), testRef)
	require.NoError(t, err)
	res, err := svc.Submit(t.Context(), view.ID, SubmitOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.AttemptID)

	history, err := svc.History(t.Context(), testRef)
	assert.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(t.Context(), "missing", SubmitOptions{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Enter(t.Context(), "missing", sales.PaymentEntry{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, f.svc.Cancel(t.Context(), "missing"), shared.ErrNotFound)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	view := f.open(t)

	require.NoError(t, f.svc.Cancel(t.Context(), view.ID))

	_, err := f.store.Load(t.Context(), view.ID)
	assert.ErrorIs(t, err, cache.ErrSessionNotFound)
	f.gateway.AssertNotCalled(t, "CloseInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ReturnToCart(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("ReturnToCart", mock.Anything, "7001").Return(nil).Once()

	assert.NoError(t, f.svc.ReturnToCart(t.Context(), " 7001 "))
	assert.ErrorIs(t, f.svc.ReturnToCart(t.Context(), "  "), shared.ErrInvalidInput)
	f.gateway.AssertExpectations(t)
}

func TestService_UpdateSeller(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("UpdateSeller", mock.Anything, "7001", int64(12)).Return(nil).Once()

	assert.NoError(t, f.svc.UpdateSeller(t.Context(), "7001", 12))
	assert.ErrorIs(t, f.svc.UpdateSeller(t.Context(), "", 12), shared.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.UpdateSeller(t.Context(), "7001", 0), shared.ErrInvalidInput)
	f.gateway.AssertExpectations(t)
}

func TestService_HistoryAndAttempts(t *testing.T) {
	f := newFixture(t)
	attempts := []sales.CloseAttempt{*sales.NewCloseAttempt("s1", testRef, sales.AttemptClosed)}
	filter := sales.CloseAttemptFilter{Status: sales.AttemptClosed}
	f.journal.On("FindByInvoice", mock.Anything, testRef).Return(attempts, nil)
	f.journal.On("FindAll", mock.Anything, filter).Return(attempts, int64(1), nil)

	history, err := f.svc.History(t.Context(), testRef)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	rows, total, err := f.svc.Attempts(t.Context(), filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, rows, 1)
}

func TestCloseFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"backend message", &upstream.StatusError{StatusCode: 400, Message: "Already closed"}, "Already closed"},
		{"wrapped backend message", errors.Join(errors.New("close"), &upstream.StatusError{Message: "No stock"}), "No stock"},
		{"blank backend message", &upstream.StatusError{Method: "GET", Path: "/x", StatusCode: 500}, "upstream GET /x: 500 "},
		{"transport error", errors.New("dial tcp: timeout"), "dial tcp: timeout"},
		{"nil", nil, fallbackCloseMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closeFailureMessage(tt.err))
		})
	}
}

func TestCloseType(t *testing.T) {
	tests := []struct {
		name   string
		fields sales.Record
		want   string
	}{
		{"lower-case key", sales.Record{"type": "gold"}, "gold"},
		{"capitalized key", sales.Record{"Type": "watch"}, "watch"},
		{"falls back to the supplier type", sales.Record{"ACHATs": []any{map[string]any{
			"Fournisseur": map[string]any{"TYPE_SUPPLIER": "Diamond"},
		}}}, "diamond"},
		{"unknown", sales.Record{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closeType(sales.NewInvoiceFromRecord(tt.fields)))
		})
	}
}
