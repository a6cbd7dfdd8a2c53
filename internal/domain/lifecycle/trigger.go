package lifecycle

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// System triggers fired by the decision router
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
	TriggerDeny        Trigger = "DENY"
	TriggerFlag        Trigger = "FLAG"

	// Admin triggers fired by the HITL gate
	TriggerResolveApprove Trigger = "RESOLVE_APPROVE"
	TriggerResolveDeny    Trigger = "RESOLVE_DENY"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
