package lifecycle

// State represents a submission state in the review lifecycle
type State string

const (
	StatePending  State = "PENDING"
	StateFlagged  State = "FLAGGED"
	StateApproved State = "APPROVED"
	StateDenied   State = "DENIED"
)

var validStates = map[State]bool{
	StatePending:  true,
	StateFlagged:  true,
	StateApproved: true,
	StateDenied:   true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateDenied:   true,
}

// IsTerminal returns true if the state is absorbing (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
