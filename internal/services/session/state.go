package session

// State is a pairing session state.
type State int

const (
	StateInit State = iota
	StateRegistering
	StateArmed
	StateRestarting
	StateComplete
	StateAborted
	StateFailed
)

var stateNames = [...]string{
	StateInit:        "INIT",
	StateRegistering: "REGISTERING",
	StateArmed:       "ARMED",
	StateRestarting:  "RESTARTING",
	StateComplete:    "COMPLETE",
	StateAborted:     "ABORTED",
	StateFailed:      "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted || s == StateFailed
}

// allowed lists the legal transitions.
var allowed = map[State][]State{
	StateInit:        {StateRegistering, StateFailed},
	StateRegistering: {StateArmed, StateAborted, StateFailed},
	StateArmed:       {StateComplete, StateAborted, StateRestarting, StateFailed},
	StateRestarting:  {StateRegistering, StateAborted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
