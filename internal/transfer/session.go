package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"solana-transfer-desk/internal/address"
	"solana-transfer-desk/internal/discovery"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/idhash"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/storage"
	"solana-transfer-desk/internal/wallet"
)

// DefaultCloseDelay is how long Close waits before resetting the state.
const DefaultCloseDelay = 200 * time.Millisecond

var (
	// ErrAttemptInFlight is returned when an attempt is already submitting or still open.
	ErrAttemptInFlight = errors.New("transfer attempt in flight")
	// ErrHoldingNotFound is returned when the selected key is not in the current holdings.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrStaleAttempt is returned when a completion arrives after the attempt was closed
	// or the identity changed. The transaction may still land.
	ErrStaleAttempt = errors.New("stale transfer attempt")
)

// Submitter builds and submits transfer transactions.
type Submitter interface {
	Submit(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error)
	CreateRecipientAccount(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error)
}

// Receipt is what the presentation layer gets back from a session operation.
type Receipt struct {
	AttemptID  string
	Validation Validation
	Result     *domain.TransferResult // set for direct submissions and completed transfers
	State      State
}

// Option configures a Session.
type Option func(*Session)

// WithAttemptStore journals every submitted step into store.
func WithAttemptStore(store storage.AttemptStore) Option {
	return func(s *Session) { s.attempts = store }
}

// WithCloseDelay overrides DefaultCloseDelay.
func WithCloseDelay(d time.Duration) Option {
	return func(s *Session) { s.closeDelay = d }
}

// WithLogger sets the session logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithObserver registers a state machine observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.machine.Observe(o) }
}

type attemptToken struct {
	generation uint64
	id         string
	identity   string
}

// Session owns the holdings, the attempt state and the loading flag of one connected wallet.
//
// At most one attempt submits at a time. Every submission carries an attempt token; Close
// and identity changes bump the generation so late completions are journaled but never
// committed to the state.
type Session struct {
	wallet     wallet.Wallet
	tracker    *discovery.Tracker
	submitter  Submitter
	attempts   storage.AttemptStore
	machine    *Machine
	logger     *log.Logger
	closeDelay time.Duration
	now        func() time.Time

	mu         sync.Mutex
	identity   string
	synced     bool
	generation uint64
	token      attemptToken
	inFlight   bool
	loading    bool
	result     *domain.TransferResult
}

// NewSession creates a session.
func NewSession(w wallet.Wallet, tracker *discovery.Tracker, submitter Submitter, opts ...Option) *Session {
	s := &Session{
		wallet:     w,
		tracker:    tracker,
		submitter:  submitter,
		machine:    NewMachine(),
		logger:     log.New(io.Discard, "", 0),
		closeDelay: DefaultCloseDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncIdentity resets the session when the wallet identity changed (including to none)
// and starts rediscovery. The returned channel closes when discovery has been merged.
func (s *Session) SyncIdentity(ctx context.Context) <-chan struct{} {
	identity, _ := s.wallet.Identity()

	s.mu.Lock()
	changed := !s.synced || identity != s.identity
	if changed {
		s.synced = true
		s.identity = identity
		s.generation++
		s.inFlight = false
		s.loading = false
		s.result = nil
		s.machine.Reset()
	}
	s.mu.Unlock()

	if !changed {
		done := make(chan struct{})
		close(done)
		return done
	}
	s.logger.Printf("identity changed to %q, rediscovering holdings", identity)
	return s.tracker.Sync(ctx, identity)
}

// Refresh rediscovers holdings of the current identity.
func (s *Session) Refresh(ctx context.Context) <-chan struct{} {
	return s.tracker.Refresh(ctx)
}

// Identity returns the identity the holdings belong to.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Holdings returns the current holdings.
func (s *Session) Holdings() []domain.Holding {
	return s.tracker.Book().Snapshot()
}

// Loading reports whether a submission is in progress.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// State returns the attempt state.
func (s *Session) State() State {
	return s.machine.State()
}

// Result returns the latest direct transfer result until the session is closed.
func (s *Session) Result() (domain.TransferResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.TransferResult{}, false
	}
	return *s.result, true
}

// Validate computes the validation flags for a prospective transfer without submitting.
func (s *Session) Validate(key domain.HoldingKey, recipient, amountText string) (Validation, error) {
	_, v, err := s.request(key, recipient, amountText)
	return v, err
}

func (s *Session) request(key domain.HoldingKey, recipient, amountText string) (domain.TransferRequest, Validation, error) {
	holding, ok := s.tracker.Book().Select(key)
	if !ok {
		return domain.TransferRequest{}, Validation{}, fmt.Errorf("%w: %s", ErrHoldingNotFound, key)
	}
	req := domain.TransferRequest{Holding: holding, Recipient: recipient}
	amount, err := ParseAmount(amountText)
	if err != nil {
		return req, Validation{AddressValid: address.Validate(recipient)}, nil
	}
	req.Amount = amount
	return req, Validate(req), nil
}

// Submit validates and submits a transfer of the selected holding.
//
// Invalid input returns a Receipt with failed Validation flags and no error. A token
// transfer to a recipient without an associated account submits nothing and leaves the
// state INITIALIZED, waiting for ConfirmCreate.
func (s *Session) Submit(ctx context.Context, key domain.HoldingKey, recipient, amountText string) (Receipt, error) {
	req, v, err := s.request(key, recipient, amountText)
	if err != nil {
		observability.RecordAttemptRejected("unknown_holding")
		return Receipt{State: s.State()}, err
	}
	if !v.OK() {
		observability.RecordAttemptRejected("validation")
		return Receipt{Validation: v, State: s.State()}, nil
	}

	token, err := s.begin(req)
	if err != nil {
		return Receipt{Validation: v, State: s.State()}, err
	}

	res, err := s.submitter.Submit(ctx, req)

	s.mu.Lock()
	receipt := Receipt{AttemptID: token.id, Validation: v}
	var rec *domain.AttemptRecord
	var missing *MissingAccountError
	switch {
	case errors.As(err, &missing):
		if !s.current(token) {
			err = s.stale(token, err)
			break
		}
		s.finish()
		err = s.machine.Begin(req)
		if err == nil {
			err = s.machine.AccountMissing(missing.Address)
		}
		observability.RecordTransferOutcome("account_missing")
		s.logger.Printf("attempt %s: %v", short(token.id), missing)
	case !s.current(token):
		rec = s.record(token, domain.StepTransfer, req, res, err)
		err = s.stale(token, err)
	case err != nil:
		s.finish()
		s.machine.Reset()
		observability.RecordTransferOutcome("failed")
		rec = s.record(token, domain.StepTransfer, req, res, err)
	default:
		s.finish()
		s.result = &res
		receipt.Result = &res
		observability.RecordTransferOutcome("success")
		rec = s.record(token, domain.StepTransfer, req, res, nil)
	}
	receipt.State = s.machine.State()
	s.mu.Unlock()

	s.journal(ctx, rec)
	return receipt, err
}

// ConfirmCreate submits the recipient account creation for an INITIALIZED attempt.
func (s *Session) ConfirmCreate(ctx context.Context) (Receipt, error) {
	s.mu.Lock()
	st, ok := s.machine.State().(Initialized)
	token, err := s.resume(ok)
	s.mu.Unlock()
	if err != nil {
		return Receipt{State: s.State()}, err
	}

	res, err := s.submitter.CreateRecipientAccount(ctx, st.Request)

	s.mu.Lock()
	receipt := Receipt{AttemptID: token.id, Validation: Validation{AddressValid: true, AmountValid: true}}
	rec := s.record(token, domain.StepCreateAccount, st.Request, res, err)
	switch {
	case !s.current(token):
		err = s.stale(token, err)
	case err != nil:
		s.finish()
		s.machine.Reset()
		observability.RecordTransferOutcome("failed")
	default:
		s.finish()
		err = s.machine.AccountCreated(res.Reference, res.ExplorerLink)
		observability.RecordTransferOutcome("account_created")
	}
	receipt.State = s.machine.State()
	s.mu.Unlock()

	s.journal(ctx, rec)
	return receipt, err
}

// CompleteTransfer submits the transfer of a SUCCESS attempt, reaching COMPLETED.
func (s *Session) CompleteTransfer(ctx context.Context) (Receipt, error) {
	s.mu.Lock()
	st, ok := s.machine.State().(Success)
	token, err := s.resume(ok)
	s.mu.Unlock()
	if err != nil {
		return Receipt{State: s.State()}, err
	}

	res, err := s.submitter.Submit(ctx, st.Request)

	s.mu.Lock()
	receipt := Receipt{AttemptID: token.id, Validation: Validation{AddressValid: true, AmountValid: true}}
	rec := s.record(token, domain.StepTransfer, st.Request, res, err)
	switch {
	case !s.current(token):
		err = s.stale(token, err)
	case err != nil:
		s.finish()
		s.machine.Reset()
		observability.RecordTransferOutcome("failed")
	default:
		s.finish()
		err = s.machine.Complete(res.Reference, res.ExplorerLink)
		receipt.Result = &res
		observability.RecordTransferOutcome("completed")
	}
	receipt.State = s.machine.State()
	s.mu.Unlock()

	s.journal(ctx, rec)
	return receipt, err
}

// Close clears the loading flag now and resets the state after the close delay.
// It does not cancel a submitted transaction; its completion is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	s.loading = false
	s.inFlight = false
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	time.AfterFunc(s.closeDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return
		}
		s.result = nil
		s.machine.Reset()
	})
}

// Attempts returns the journal of the current identity, newest first.
func (s *Session) Attempts(ctx context.Context, limit int) ([]*domain.AttemptRecord, error) {
	if s.attempts == nil {
		return nil, nil
	}
	return s.attempts.GetByIdentity(ctx, s.Identity(), limit)
}

// begin opens a new attempt for req.
func (s *Session) begin(req domain.TransferRequest) (attemptToken, error) {
	identity, ok := s.wallet.Identity()
	if !ok {
		observability.RecordAttemptRejected("not_connected")
		return attemptToken{}, wallet.ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		observability.RecordAttemptRejected("in_flight")
		return attemptToken{}, ErrAttemptInFlight
	}
	if st := s.machine.State(); st.Phase() != PhaseNotInitialized {
		observability.RecordAttemptRejected("attempt_open")
		return attemptToken{}, fmt.Errorf("%w: attempt is %s", ErrAttemptInFlight, st.Phase())
	}

	s.generation++
	s.token = attemptToken{
		generation: s.generation,
		id:         idhash.ComputeAttemptID(identity, req, s.generation),
		identity:   identity,
	}
	s.inFlight = true
	s.loading = true
	s.result = nil
	return s.token, nil
}

// resume continues the open attempt. ok reports whether the state accepts the step.
// Must be called with mu held.
func (s *Session) resume(ok bool) (attemptToken, error) {
	if s.inFlight {
		observability.RecordAttemptRejected("in_flight")
		return attemptToken{}, ErrAttemptInFlight
	}
	if !ok || !s.current(s.token) {
		return attemptToken{}, fmt.Errorf("%w: from %s", ErrInvalidTransition, s.machine.State().Phase())
	}
	s.inFlight = true
	s.loading = true
	return s.token, nil
}

func (s *Session) current(t attemptToken) bool {
	return t.generation == s.generation
}

func (s *Session) finish() {
	s.inFlight = false
	s.loading = false
}

func (s *Session) stale(t attemptToken, err error) error {
	observability.RecordTransferOutcome("stale")
	s.logger.Printf("attempt %s finished after close, discarding (err=%v)", short(t.id), err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStaleAttempt, err)
	}
	return ErrStaleAttempt
}

func (s *Session) record(t attemptToken, step domain.AttemptStep, req domain.TransferRequest, res domain.TransferResult, err error) *domain.AttemptRecord {
	rec := &domain.AttemptRecord{
		AttemptID:    t.id,
		Step:         step,
		Identity:     t.identity,
		AssetID:      req.Holding.AssetID,
		Symbol:       req.Holding.Symbol,
		Recipient:    req.Recipient,
		Amount:       req.Amount,
		Outcome:      domain.OutcomeSuccess,
		Reference:    res.Reference,
		ExplorerLink: res.ExplorerLink,
		CreatedAt:    s.now().UnixMilli(),
	}
	if err != nil {
		rec.Outcome = domain.OutcomeFailed
		rec.Error = err.Error()
	}
	return rec
}

func (s *Session) journal(ctx context.Context, rec *domain.AttemptRecord) {
	if rec == nil {
		return
	}
	s.logger.Print(rec.Summary())
	if s.attempts == nil {
		return
	}
	if err := s.attempts.Insert(ctx, rec); err != nil {
		s.logger.Printf("journal attempt %s %s: %v", short(rec.AttemptID), rec.Step, err)
	}
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
