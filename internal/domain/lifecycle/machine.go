package lifecycle

import "fmt"

// Machine tracks the current state of one submission and validates
// transitions against the legal state graph:
//
//	PENDING → APPROVED | DENIED | FLAGGED
//	FLAGGED → APPROVED | DENIED
//
// APPROVED and DENIED are absorbing. The machine is the single authority
// consulted before any status write.
type Machine struct {
	current     State
	transitions map[State]map[Trigger]State
}

// graph enumerates every legal transition. Anything absent is illegal.
var graph = map[State]map[Trigger]State{
	StatePending: {
		TriggerAutoApprove: StateApproved,
		TriggerDeny:        StateDenied,
		TriggerFlag:        StateFlagged,
	},
	StateFlagged: {
		TriggerResolveApprove: StateApproved,
		TriggerResolveDeny:    StateDenied,
	},
}

// NewMachine creates a machine positioned at the given state.
func NewMachine(initial State) (*Machine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initial)
	}
	return &Machine{current: initial, transitions: graph}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := m.transitions[m.current][trigger]
	return ok
}

// Fire executes the trigger, transitioning to the target state if the
// transition is legal.
func (m *Machine) Fire(trigger Trigger) error {
	next, ok := m.transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = next
	return nil
}

// PermittedTriggers returns all triggers that can be fired in the current state.
func (m *Machine) PermittedTriggers() []Trigger {
	permitted := make([]Trigger, 0, len(m.transitions[m.current]))
	for trigger := range m.transitions[m.current] {
		permitted = append(permitted, trigger)
	}
	return permitted
}

// ResolveTrigger maps an admin decision string to its HITL trigger.
func ResolveTrigger(decision string) (Trigger, error) {
	switch decision {
	case "approve":
		return TriggerResolveApprove, nil
	case "deny":
		return TriggerResolveDeny, nil
	default:
		return "", fmt.Errorf("unknown decision %q: must be approve or deny", decision)
	}
}
