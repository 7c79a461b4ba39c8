package transfer

import (
	"errors"
	"fmt"
	"sync"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
)

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Phase names a state of the account creation flow.
type Phase string

const (
	PhaseNotInitialized Phase = "NOT_INITIALIZED"
	PhasePending        Phase = "PENDING"
	PhaseInitialized    Phase = "INITIALIZED"
	PhaseSuccess        Phase = "SUCCESS"
	PhaseCompleted      Phase = "COMPLETED"
)

// State is one variant of the attempt state. Each variant carries only the fields valid for it.
type State interface {
	Phase() Phase
	isState()
}

// NotInitialized is the initial state and the state reached on close.
type NotInitialized struct{}

// Pending holds a token transfer whose recipient account is being looked up.
type Pending struct {
	Request domain.TransferRequest
}

// Initialized waits for the user to confirm creation of RecipientAccount.
type Initialized struct {
	Request          domain.TransferRequest
	RecipientAccount string
}

// Success records the confirmed account creation; the transfer itself is still outstanding.
type Success struct {
	Request      domain.TransferRequest
	CreationRef  string
	ExplorerLink string
}

// Completed records the transfer that followed account creation.
type Completed struct {
	Request      domain.TransferRequest
	TransferRef  string
	ExplorerLink string
}

func (NotInitialized) Phase() Phase { return PhaseNotInitialized }
func (Pending) Phase() Phase        { return PhasePending }
func (Initialized) Phase() Phase    { return PhaseInitialized }
func (Success) Phase() Phase        { return PhaseSuccess }
func (Completed) Phase() Phase      { return PhaseCompleted }

func (NotInitialized) isState() {}
func (Pending) isState()        {}
func (Initialized) isState()    {}
func (Success) isState()        {}
func (Completed) isState()      {}

// RequestOf returns the request carried by s, if any.
func RequestOf(s State) (domain.TransferRequest, bool) {
	switch v := s.(type) {
	case Pending:
		return v.Request, true
	case Initialized:
		return v.Request, true
	case Success:
		return v.Request, true
	case Completed:
		return v.Request, true
	}
	return domain.TransferRequest{}, false
}

// Observer is notified of every committed transition, in order.
type Observer func(from, to State)

// Machine holds the attempt state.
//
//	NOT_INITIALIZED -> PENDING -> INITIALIZED -> SUCCESS -> COMPLETED
//
// Reset returns to NOT_INITIALIZED from anywhere.
type Machine struct {
	mu        sync.Mutex
	state     State
	observers []Observer
}

// NewMachine creates a machine in NotInitialized.
func NewMachine(observers ...Observer) *Machine {
	return &Machine{state: NotInitialized{}, observers: observers}
}

// Observe registers an observer. Observers run synchronously and must not call back into the machine.
func (m *Machine) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin starts an attempt for req.
func (m *Machine) Begin(req domain.TransferRequest) error {
	return m.transition(func(s State) (State, bool) {
		if _, ok := s.(NotInitialized); !ok {
			return nil, false
		}
		return Pending{Request: req}, true
	})
}

// AccountMissing moves a pending attempt to await creation of recipientAccount.
func (m *Machine) AccountMissing(recipientAccount string) error {
	return m.transition(func(s State) (State, bool) {
		p, ok := s.(Pending)
		if !ok {
			return nil, false
		}
		return Initialized{Request: p.Request, RecipientAccount: recipientAccount}, true
	})
}

// AccountCreated records the confirmed creation transaction.
func (m *Machine) AccountCreated(ref, explorerLink string) error {
	return m.transition(func(s State) (State, bool) {
		i, ok := s.(Initialized)
		if !ok {
			return nil, false
		}
		return Success{Request: i.Request, CreationRef: ref, ExplorerLink: explorerLink}, true
	})
}

// Complete records the transfer that followed account creation.
func (m *Machine) Complete(ref, explorerLink string) error {
	return m.transition(func(s State) (State, bool) {
		sc, ok := s.(Success)
		if !ok {
			return nil, false
		}
		return Completed{Request: sc.Request, TransferRef: ref, ExplorerLink: explorerLink}, true
	})
}

// Reset returns to NotInitialized. Resetting NotInitialized is a no-op.
func (m *Machine) Reset() {
	_ = m.transition(func(s State) (State, bool) {
		if _, ok := s.(NotInitialized); ok {
			return s, true
		}
		return NotInitialized{}, true
	})
}

func (m *Machine) transition(next func(State) (State, bool)) error {
	m.mu.Lock()
	from := m.state
	to, ok := next(from)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: from %s", ErrInvalidTransition, from.Phase())
	}
	if to == from {
		m.mu.Unlock()
		return nil
	}
	m.state = to
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	observability.RecordStateTransition(string(from.Phase()), string(to.Phase()))
	for _, o := range observers {
		o(from, to)
	}
	return nil
}
