package withdraw

import "fmt"

type State uint8

const (
	StateIdle State = iota
	StateValidating
	StateRequesting
	StateSuccess
	StateInsufficientFunds
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateRequesting:
		return "Requesting"
	case StateSuccess:
		return "Success"
	case StateInsufficientFunds:
		return "InsufficientFunds"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether an attempt ends in s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateInsufficientFunds ||
		s == StateFailed
}

// InFlight reports whether an attempt is being processed.
func (s State) InFlight() bool {
	return s == StateValidating || s == StateRequesting
}

var transitions = map[State][]State{
	StateIdle:              {StateValidating},
	StateValidating:        {StateIdle, StateRequesting, StateFailed},
	StateRequesting:        {StateSuccess, StateInsufficientFunds, StateFailed},
	StateSuccess:           {StateIdle, StateValidating},
	StateInsufficientFunds: {StateIdle, StateValidating},
	StateFailed:            {StateIdle, StateValidating},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}
