package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-transfer-desk/internal/domain"
)

func TestMachine_HappyPath(t *testing.T) {
	var seen []Phase
	m := NewMachine(func(_, to State) { seen = append(seen, to.Phase()) })
	req := domain.TransferRequest{Recipient: "r", Amount: dec("40")}

	require.NoError(t, m.Begin(req))
	require.NoError(t, m.AccountMissing("ata"))
	require.NoError(t, m.AccountCreated("sig-create", "link-create"))
	require.NoError(t, m.Complete("sig-transfer", "link-transfer"))

	assert.Equal(t, []Phase{PhasePending, PhaseInitialized, PhaseSuccess, PhaseCompleted}, seen)

	done, ok := m.State().(Completed)
	require.True(t, ok)
	assert.Equal(t, "sig-transfer", done.TransferRef)
	assert.Equal(t, "r", done.Request.Recipient)
}

func TestMachine_VariantsCarryFields(t *testing.T) {
	m := NewMachine()
	req := domain.TransferRequest{Recipient: "r"}
	require.NoError(t, m.Begin(req))
	require.NoError(t, m.AccountMissing("ata"))

	init, ok := m.State().(Initialized)
	require.True(t, ok)
	assert.Equal(t, "ata", init.RecipientAccount)

	require.NoError(t, m.AccountCreated("sig", "link"))
	success, ok := m.State().(Success)
	require.True(t, ok)
	assert.Equal(t, "sig", success.CreationRef)
	assert.Equal(t, "link", success.ExplorerLink)

	got, ok := RequestOf(success)
	require.True(t, ok)
	assert.Equal(t, "r", got.Recipient)

	_, ok = RequestOf(NotInitialized{})
	assert.False(t, ok)
}

// Every event other than the next one on the path is rejected from every state.
func TestMachine_Reachability(t *testing.T) {
	req := domain.TransferRequest{Recipient: "r"}
	events := map[Phase]func(*Machine) error{
		PhasePending:     func(m *Machine) error { return m.Begin(req) },
		PhaseInitialized: func(m *Machine) error { return m.AccountMissing("ata") },
		PhaseSuccess:     func(m *Machine) error { return m.AccountCreated("sig", "link") },
		PhaseCompleted:   func(m *Machine) error { return m.Complete("sig", "link") },
	}
	path := []Phase{PhaseNotInitialized, PhasePending, PhaseInitialized, PhaseSuccess, PhaseCompleted}

	for i, from := range path {
		for target, event := range events {
			m := NewMachine()
			for _, step := range path[1 : i+1] {
				require.NoError(t, events[step](m))
			}
			require.Equal(t, from, m.State().Phase())

			err := event(m)
			if i+1 < len(path) && target == path[i+1] {
				assert.NoError(t, err, "%s -> %s", from, target)
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, target)
			assert.Equal(t, from, m.State().Phase())
		}
	}
}

func TestMachine_ResetFromAnyState(t *testing.T) {
	req := domain.TransferRequest{Recipient: "r"}
	steps := []func(*Machine) error{
		func(m *Machine) error { return m.Begin(req) },
		func(m *Machine) error { return m.AccountMissing("ata") },
		func(m *Machine) error { return m.AccountCreated("sig", "link") },
		func(m *Machine) error { return m.Complete("sig", "link") },
	}
	for n := 0; n <= len(steps); n++ {
		m := NewMachine()
		for _, step := range steps[:n] {
			require.NoError(t, step(m))
		}
		m.Reset()
		assert.Equal(t, PhaseNotInitialized, m.State().Phase())
	}
}

func TestMachine_ResetIdleIsSilent(t *testing.T) {
	calls := 0
	m := NewMachine(func(_, _ State) { calls++ })
	m.Reset()
	assert.Zero(t, calls)
}
