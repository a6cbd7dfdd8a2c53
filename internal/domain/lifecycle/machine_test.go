package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTransitions(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		want    State
	}{
		{"auto approve", TriggerAutoApprove, StateApproved},
		{"deny", TriggerDeny, StateDenied},
		{"flag", TriggerFlag, StateFlagged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMachine(StatePending)
			require.NoError(t, err)

			require.True(t, m.CanFire(tt.trigger))
			require.NoError(t, m.Fire(tt.trigger))
			assert.Equal(t, tt.want, m.State())
		})
	}
}

func TestFlaggedResolvesOnlyViaHITLTriggers(t *testing.T) {
	m, err := NewMachine(StateFlagged)
	require.NoError(t, err)

	assert.False(t, m.CanFire(TriggerAutoApprove))
	assert.False(t, m.CanFire(TriggerFlag))

	require.NoError(t, m.Fire(TriggerResolveApprove))
	assert.Equal(t, StateApproved, m.State())
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	for _, terminal := range []State{StateApproved, StateDenied} {
		m, err := NewMachine(terminal)
		require.NoError(t, err)

		assert.Empty(t, m.PermittedTriggers())
		for _, trigger := range []Trigger{
			TriggerAutoApprove, TriggerDeny, TriggerFlag,
			TriggerResolveApprove, TriggerResolveDeny,
		} {
			err := m.Fire(trigger)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.True(t, terminal.IsTerminal())
	}
}

func TestNewMachineRejectsInvalidState(t *testing.T) {
	_, err := NewMachine(State("LIMBO"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestResolveTrigger(t *testing.T) {
	trigger, err := ResolveTrigger("approve")
	require.NoError(t, err)
	assert.Equal(t, TriggerResolveApprove, trigger)

	trigger, err = ResolveTrigger("deny")
	require.NoError(t, err)
	assert.Equal(t, TriggerResolveDeny, trigger)

	_, err = ResolveTrigger("escalate")
	assert.Error(t, err)
}
