package enums

import "fmt"

// AttemptState is the lifecycle of a single payment attempt.
type AttemptState string

const (
	AttemptStateUninitialized AttemptState = "uninitialized"
	AttemptStateCreating      AttemptState = "creating"
	AttemptStateReady         AttemptState = "ready"
	AttemptStateConfirming    AttemptState = "confirming"
	AttemptStateSucceeded     AttemptState = "succeeded"
	AttemptStateFailed        AttemptState = "failed"
)

var validAttemptStates = []AttemptState{
	AttemptStateUninitialized,
	AttemptStateCreating,
	AttemptStateReady,
	AttemptStateConfirming,
	AttemptStateSucceeded,
	AttemptStateFailed,
}

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptStateUninitialized: {AttemptStateCreating},
	AttemptStateCreating:      {AttemptStateReady, AttemptStateFailed},
	AttemptStateReady:         {AttemptStateConfirming, AttemptStateFailed},
	AttemptStateConfirming:    {AttemptStateSucceeded, AttemptStateFailed, AttemptStateReady},
}

// String implements fmt.Stringer.
func (a AttemptState) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AttemptState.
func (a AttemptState) IsValid() bool {
	for _, candidate := range validAttemptStates {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (a AttemptState) IsTerminal() bool {
	return a == AttemptStateSucceeded || a == AttemptStateFailed
}

// CanTransitionTo reports whether next is a legal successor of a.
// confirming -> ready covers a gateway that still needs customer action.
func (a AttemptState) CanTransitionTo(next AttemptState) bool {
	for _, candidate := range attemptTransitions[a] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseAttemptState converts raw input into an AttemptState.
func ParseAttemptState(value string) (AttemptState, error) {
	for _, candidate := range validAttemptStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attempt state %q", value)
}
