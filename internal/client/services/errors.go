// Package services contains the client's application workflows: the email
// one-time-code sign-in, the alert confirmation, course browsing and
// subscription management. Each workflow depends on small interfaces so the
// CLI can drive it and tests can fake the backend.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a submit is attempted while another one of
	// the same flow is still in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrWrongStep is returned for an action the current step does not offer.
	ErrWrongStep = errors.New("action not available at this step")
	// ErrClosed is returned once a flow has been closed.
	ErrClosed = errors.New("flow closed")
	// ErrCooldown is returned when a code is resent before the wait is over.
	ErrCooldown = errors.New("please wait before requesting another code")
	// ErrNoSections is returned when a confirmation is opened with nothing
	// selected.
	ErrNoSections = errors.New("no sections selected")
	// ErrSignedOut is returned when a step needs a signed-in user and the
	// session has ended.
	ErrSignedOut = errors.New("signed out")
)

// SessionExpiredMessage is shown when a flow has to start sign-in over.
const SessionExpiredMessage = "Your session has expired. Please sign in again."


// StepError is a failed backend call surfaced on the step that made it.
// Message is what the user should see.
type StepError struct {
	Message string
	Err     error
}

func (e *StepError) Error() string { return e.Message }

func (e *StepError) Unwrap() error { return e.Err }

func wrongStep(at fmt.Stringer) error {
	return fmt.Errorf("%w (at %s)", ErrWrongStep, at)
}
