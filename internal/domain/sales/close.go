package sales

import (
	"github.com/erp/salesrecon/internal/domain/shared"
	"github.com/erp/salesrecon/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CloseState is the state of a close-invoice session
type CloseState string

const (
	CloseIdle       CloseState = "idle"
	CloseEditing    CloseState = "editing"
	CloseValidating CloseState = "validating"
	CloseAccepted   CloseState = "accepted"
	CloseRejected   CloseState = "rejected"
	CloseCancelled  CloseState = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s CloseState) IsTerminal() bool {
	return s == CloseAccepted || s == CloseCancelled
}

// PaymentEpsilon is the tolerance for comparing entered and recorded amounts
var PaymentEpsilon = valueobject.Cent()

// Violation codes
const (
	CodeOverpayment               = "OVERPAYMENT"
	CodeUSDEquivalentMissing      = "USD_EQUIVALENT_MISSING"
	CodeEUREquivalentMissing      = "EUR_EQUIVALENT_MISSING"
	CodeInvoiceIdentifiersMissing = "INVOICE_IDENTIFIERS_MISSING"
)

var (
	ErrOverpayment               = shared.NewDomainError(CodeOverpayment, "Overpayment detected. Reduce the entered amount.")
	ErrUSDEquivalentMissing      = shared.NewDomainError(CodeUSDEquivalentMissing, "If you enter USD you must also enter the LYD equivalent.")
	ErrEUREquivalentMissing      = shared.NewDomainError(CodeEUREquivalentMissing, "If you enter EUR you must also enter the LYD equivalent.")
	ErrInvoiceIdentifiersMissing = shared.NewDomainError(CodeInvoiceIdentifiersMissing, "Invoice ps/usr/num_fact missing.")
	ErrInvoiceAlreadyClosed      = shared.NewDomainError("INVALID_STATE", "Invoice is already closed")
)

// PaymentEntry is the set of amounts paid against an invoice. The *LYD
// fields are the dinar equivalents of the foreign amounts.
type PaymentEntry struct {
	LYD    decimal.Decimal `json:"amount_lyd"`
	USD    decimal.Decimal `json:"amount_currency"`
	USDLYD decimal.Decimal `json:"amount_currency_LYD"`
	EUR    decimal.Decimal `json:"amount_EUR"`
	EURLYD decimal.Decimal `json:"amount_EUR_LYD"`
}

// RecordedPayment reads the amounts the backend has on file
func RecordedPayment(f Record) PaymentEntry {
	return PaymentEntry{
		LYD:    PaidLYD.OrZero(f),
		USD:    PaidUSD.OrZero(f),
		USDLYD: PaidUSDLYD.OrZero(f),
		EUR:    PaidEUR.OrZero(f),
		EURLYD: PaidEURLYD.OrZero(f),
	}
}

// ParsePaymentEntry builds an entry from clerk-typed text
func ParsePaymentEntry(lyd, usd, usdLYD, eur, eurLYD string) PaymentEntry {
	return PaymentEntry{
		LYD:    valueobject.ParseAmount(lyd),
		USD:    valueobject.ParseAmount(usd),
		USDLYD: valueobject.ParseAmount(usdLYD),
		EUR:    valueobject.ParseAmount(eur),
		EURLYD: valueobject.ParseAmount(eurLYD),
	}
}

// Rounded returns the entry with every amount rounded to cents
func (e PaymentEntry) Rounded() PaymentEntry {
	return PaymentEntry{
		LYD:    valueobject.Round2(e.LYD),
		USD:    valueobject.Round2(e.USD),
		USDLYD: valueobject.Round2(e.USDLYD),
		EUR:    valueobject.Round2(e.EUR),
		EURLYD: valueobject.Round2(e.EURLYD),
	}
}

// LYDEquivalent sums the dinar amount and the dinar equivalents
func (e PaymentEntry) LYDEquivalent() decimal.Decimal {
	return valueobject.Round2(e.LYD.Add(e.USDLYD).Add(e.EURLYD))
}

// Remainder is the shortfall between recorded and entered amounts
type Remainder struct {
	LYD decimal.Decimal `json:"lyd"`
	USD decimal.Decimal `json:"usd"`
	EUR decimal.Decimal `json:"eur"`
}

// IsZero reports whether the entered amounts match the recorded ones
func (r Remainder) IsZero() bool {
	return r.LYD.IsZero() && r.USD.IsZero() && r.EUR.IsZero()
}

// CloseOutcome is the result of submitting a session
type CloseOutcome struct {
	State       CloseState          `json:"state"`
	Payment     PaymentEntry        `json:"payment"`
	Remainder   Remainder           `json:"remainder"`
	Outstanding InvoiceBalance      `json:"outstanding"`
	Violation   *shared.DomainError `json:"violation,omitempty"`
}

// CloseSession validates the amounts a clerk enters when closing an invoice.
// Entered amounts may fall short of what was recorded but never exceed it.
type CloseSession struct {
	id       string
	invoice  *MergedInvoice
	state    CloseState
	recorded PaymentEntry
	entry    PaymentEntry
	calc     *BalanceCalculator
	outcome  *CloseOutcome
	rowIDs   []string
}

// NewCloseSession creates an idle session for inv
func NewCloseSession(id string, inv *MergedInvoice, calc *BalanceCalculator) *CloseSession {
	if calc == nil {
		calc = NewBalanceCalculator()
	}
	return &CloseSession{
		id:       id,
		invoice:  inv,
		state:    CloseIdle,
		recorded: recordedForClose(inv.Fields),
		calc:     calc,
	}
}

// recordedForClose applies the dialog's rounding: dinar figures to cents,
// foreign amounts as stored
func recordedForClose(f Record) PaymentEntry {
	r := RecordedPayment(f)
	r.LYD = valueobject.Round2(r.LYD)
	r.USDLYD = valueobject.Round2(r.USDLYD)
	r.EURLYD = valueobject.Round2(r.EURLYD)
	return r
}

// ID returns the session identifier
func (s *CloseSession) ID() string { return s.id }

// Invoice returns the invoice under close
func (s *CloseSession) Invoice() *MergedInvoice { return s.invoice }

// State returns the current state
func (s *CloseSession) State() CloseState { return s.state }

// Recorded returns the amounts on file when the session was created
func (s *CloseSession) Recorded() PaymentEntry { return s.recorded }

// Entry returns the amounts currently entered
func (s *CloseSession) Entry() PaymentEntry { return s.entry }

// RowIDs returns the id_fact of every backend row the payment is written to
func (s *CloseSession) RowIDs() []string { return s.rowIDs }

// SetRowIDs records the backend rows of the invoice, in fetch order
func (s *CloseSession) SetRowIDs(ids []string) {
	s.rowIDs = append([]string(nil), ids...)
}

// Outcome returns the last submit outcome, nil before the first submit
func (s *CloseSession) Outcome() *CloseOutcome { return s.outcome }

// Open moves an idle session to editing, seeding the entry with the recorded amounts
func (s *CloseSession) Open() error {
	if s.state != CloseIdle {
		return s.transitionError("open")
	}
	if s.invoice.Closed {
		return ErrInvoiceAlreadyClosed
	}
	s.entry = s.recorded
	s.state = CloseEditing
	return nil
}

// Enter replaces the entered amounts. A missing dinar equivalent is filled
// from the invoice's rate when one can be derived; a positive equivalent
// typed by the clerk is kept.
func (s *CloseSession) Enter(entry PaymentEntry) error {
	if s.state != CloseEditing {
		return s.transitionError("enter")
	}
	entry.LYD = valueobject.Round2(entry.LYD)
	entry.USD = valueobject.Round2(entry.USD)
	entry.EUR = valueobject.Round2(entry.EUR)
	entry.USDLYD = valueobject.Round2(entry.USDLYD)
	entry.EURLYD = valueobject.Round2(entry.EURLYD)

	if entry.USD.IsPositive() && !entry.USDLYD.IsPositive() {
		if r, ok := s.usdRate(); ok {
			entry.USDLYD = valueobject.Round2(entry.USD.Mul(r))
		}
	}
	if entry.EUR.IsPositive() && !entry.EURLYD.IsPositive() {
		if r, ok := s.eurRate(); ok {
			entry.EURLYD = valueobject.Round2(entry.EUR.Mul(r))
		}
	}
	s.entry = entry
	return nil
}

// usdRate is amount_currency_LYD / amount_currency, else the invoice rate
func (s *CloseSession) usdRate() (decimal.Decimal, bool) {
	f := s.invoice.Fields
	if r, ok := ImpliedRate(PaidUSDLYD.OrZero(f), PaidUSD.OrZero(f)); ok {
		return r, true
	}
	return InvoiceRate.Positive(f)
}

// eurRate has no fallback
func (s *CloseSession) eurRate() (decimal.Decimal, bool) {
	f := s.invoice.Fields
	return ImpliedRate(PaidEURLYD.OrZero(f), PaidEUR.OrZero(f))
}

// Submit validates the entry. On acceptance the outcome carries the rounded
// payload to persist; on rejection the violation is returned as the error
// and the session waits for Resume.
func (s *CloseSession) Submit() (*CloseOutcome, error) {
	if s.state != CloseEditing {
		return nil, s.transitionError("submit")
	}
	s.state = CloseValidating

	out := &CloseOutcome{Payment: s.entry.Rounded()}
	if v := s.validate(); v != nil {
		s.state = CloseRejected
		out.State = CloseRejected
		out.Violation = v
		s.outcome = out
		return out, v
	}

	out.State = CloseAccepted
	out.Remainder = Remainder{
		LYD: valueobject.NonNegative(s.recorded.LYD.Sub(s.entry.LYD)),
		USD: valueobject.NonNegative(s.recorded.USD.Sub(s.entry.USD)),
		EUR: valueobject.NonNegative(s.recorded.EUR.Sub(s.entry.EUR)),
	}
	out.Outstanding = s.calc.ComputeWithPayment(s.invoice, out.Payment)
	s.state = CloseAccepted
	s.outcome = out
	return out, nil
}

func (s *CloseSession) validate() *shared.DomainError {
	var over []string
	check := func(c valueobject.Currency, entered, recorded decimal.Decimal) {
		if valueobject.Exceeds(entered, recorded, PaymentEpsilon) {
			over = append(over, string(c))
		}
	}
	check(valueobject.LYD, valueobject.Round2(s.entry.LYD), s.recorded.LYD)
	check(valueobject.USD, s.entry.USD, s.recorded.USD)
	check(valueobject.EUR, s.entry.EUR, s.recorded.EUR)
	if len(over) > 0 {
		return ErrOverpayment.WithDetail("currencies", over)
	}

	if s.entry.USD.GreaterThan(PaymentEpsilon) && s.entry.USDLYD.LessThanOrEqual(PaymentEpsilon) {
		return ErrUSDEquivalentMissing
	}
	if s.entry.EUR.GreaterThan(PaymentEpsilon) && s.entry.EURLYD.LessThanOrEqual(PaymentEpsilon) {
		return ErrEUREquivalentMissing
	}
	if !s.invoice.Ref().Complete() {
		return ErrInvoiceIdentifiersMissing
	}
	return nil
}

// Resume returns a rejected session to editing, keeping the entry
func (s *CloseSession) Resume() error {
	if s.state != CloseRejected {
		return s.transitionError("resume")
	}
	s.state = CloseEditing
	return nil
}

// Reopen returns an accepted session to editing. Used when the backend
// refuses the closure after amounts were validated.
func (s *CloseSession) Reopen() error {
	if s.state != CloseAccepted {
		return s.transitionError("reopen")
	}
	s.state = CloseEditing
	return nil
}

// Cancel abandons the session without side effects
func (s *CloseSession) Cancel() error {
	switch s.state {
	case CloseIdle, CloseEditing, CloseRejected:
		s.state = CloseCancelled
		return nil
	default:
		return s.transitionError("cancel")
	}
}

func (s *CloseSession) transitionError(op string) error {
	return shared.NewDomainErrorf("INVALID_STATE", "cannot %s a close session in state %s", op, s.state)
}

// CloseSessionSnapshot is the serializable form of a session
type CloseSessionSnapshot struct {
	ID       string        `json:"id"`
	State    CloseState    `json:"state"`
	Invoice  Record        `json:"invoice"`
	Recorded PaymentEntry  `json:"recorded"`
	Entry    PaymentEntry  `json:"entry"`
	Outcome  *CloseOutcome `json:"outcome,omitempty"`
	RowIDs   []string      `json:"row_ids,omitempty"`
}

// Snapshot captures the session for storage
func (s *CloseSession) Snapshot() CloseSessionSnapshot {
	return CloseSessionSnapshot{
		ID:       s.id,
		State:    s.state,
		Invoice:  s.invoice.Fields,
		Recorded: s.recorded,
		Entry:    s.entry,
		Outcome:  s.outcome,
		RowIDs:   s.rowIDs,
	}
}

// RestoreCloseSession rebuilds a session from a snapshot
func RestoreCloseSession(snap CloseSessionSnapshot, calc *BalanceCalculator) *CloseSession {
	s := NewCloseSession(snap.ID, NewInvoiceFromRecord(snap.Invoice), calc)
	s.state = snap.State
	s.recorded = snap.Recorded
	s.entry = snap.Entry
	s.outcome = snap.Outcome
	s.rowIDs = snap.RowIDs
	return s
}
