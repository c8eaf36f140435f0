package pipeline

import (
	"errors"

	"github.com/devghori1264/vinreport/internal/storage"
)

// State is a step of a report run.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateDecoding  State = "DECODING"
	StateRendering State = "RENDERING"
	StateStored    State = "STORED"
	StateNotifying State = "NOTIFYING"
	StateCompleted State = "COMPLETED"

	// StatePartial means the artifact is stored but the email failed.
	StatePartial State = "PARTIAL"

	StateFailedDecode State = "FAILED_DECODE"
	StateFailedRender State = "FAILED_RENDER"
	StateFailedStore  State = "FAILED_STORE"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StatePartial, StateFailedDecode, StateFailedRender, StateFailedStore:
		return true
	}
	return false
}

// Succeeded reports whether a terminal state leaves a usable artifact.
func (s State) Succeeded() bool {
	return s == StateCompleted || s == StatePartial
}

// Next maps the current state and the result of its step to the next state.
// RENDERING covers both render and store; a *storage.StoreError from that
// step means the render itself succeeded.
func Next(s State, stepErr error, wantsNotify bool) State {
	switch s {
	case StateReceived:
		return StateDecoding
	case StateDecoding:
		if stepErr != nil {
			return StateFailedDecode
		}
		return StateRendering
	case StateRendering:
		if stepErr != nil {
			var se *storage.StoreError
			if errors.As(stepErr, &se) {
				return StateFailedStore
			}
			return StateFailedRender
		}
		return StateStored
	case StateStored:
		if wantsNotify {
			return StateNotifying
		}
		return StateCompleted
	case StateNotifying:
		if stepErr != nil {
			return StatePartial
		}
		return StateCompleted
	default:
		return s
	}
}

// failureFor is the terminal state for an unexpected fault while in s.
func failureFor(s State) State {
	switch s {
	case StateReceived, StateDecoding:
		return StateFailedDecode
	case StateRendering:
		return StateFailedRender
	case StateStored:
		return StateCompleted
	case StateNotifying:
		return StatePartial
	default:
		return s
	}
}
