package pipeline

// State is the position of one request in the authorization pipeline
type State int

const (
	StateUnauthenticated State = iota
	StateIdentified
	StateTenantBound
	StateAuthorized
	StateCompleted
	StateRejected
)

var stateNames = map[State]string{
	StateUnauthenticated: "unauthenticated",
	StateIdentified:      "identified",
	StateTenantBound:     "tenant_bound",
	StateAuthorized:      "authorized",
	StateCompleted:       "completed",
	StateRejected:        "rejected",
}

// String returns the state name
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// next lists the forward transitions. Rejected is reachable from every
// non-terminal state and is handled separately. There is no way back.
var next = map[State]State{
	StateUnauthenticated: StateIdentified,
	StateIdentified:      StateTenantBound,
	StateTenantBound:     StateAuthorized,
	StateAuthorized:      StateCompleted,
}

// CanTransition reports whether s may move to to
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateRejected {
		return true
	}
	return next[s] == to
}
