package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kz4killua/course-alerts/internal/client/client"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/logging"
)

// ConfirmStep is a stage of the alert confirmation.
type ConfirmStep int

const (
	StepAuthenticate ConfirmStep = iota
	StepConfirmAlerts
	StepClosed
)

func (s ConfirmStep) String() string {
	switch s {
	case StepAuthenticate:
		return "authenticate"
	case StepConfirmAlerts:
		return "confirm-alerts"
	case StepClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConfirmStep(%d)", int(s))
	}
}

// SubscriptionAPI creates alert subscriptions.
type SubscriptionAPI interface {
	CreateSubscriptions(ctx context.Context, term string, crns []string) ([]models.Section, error)
}

// ConfirmFlow signs the user in if needed, then subscribes them to alerts
// for the selected sections of one term.
type ConfirmFlow struct {
	login    LoginDeps
	api      SubscriptionAPI
	notifier Notifier
	clearer  SelectionClearer

	term     models.Term
	sections []models.Section

	mu   sync.Mutex
	step ConfirmStep
	auth *LoginFlow
	busy atomic.Bool
}

// NewConfirmFlow opens a confirmation for sections of term. clearer is
// emptied only after a successful subscription.
func NewConfirmFlow(login LoginDeps, api SubscriptionAPI, notifier Notifier, term models.Term, sections []models.Section, clearer SelectionClearer) (*ConfirmFlow, error) {
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	if login.Log == nil {
		login.Log = logging.NewNop()
	}

	f := &ConfirmFlow{
		login:    login,
		api:      api,
		notifier: notifier,
		clearer:  clearer,
		term:     term,
		sections: append([]models.Section(nil), sections...),
	}

	if _, ok := login.Session.User(); ok {
		f.step = StepConfirmAlerts
	} else {
		f.step = StepAuthenticate
		f.auth = NewLoginFlow(f.login, f.authenticated)
	}
	return f, nil
}

func (f *ConfirmFlow) authenticated(models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepAuthenticate {
		f.step = StepConfirmAlerts
	}
}

// Step returns the current step.
func (f *ConfirmFlow) Step() ConfirmStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Login returns the sign-in flow driving the authenticate step, or nil once
// the user is signed in.
func (f *ConfirmFlow) Login() *LoginFlow {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepAuthenticate {
		return nil
	}
	return f.auth
}

// Summary describes what Submit will do.
func (f *ConfirmFlow) Summary() string {
	return fmt.Sprintf("You are about to sign up for alerts to %s in %s.",
		models.Plural(len(f.sections), "section", "sections"), f.term.TermDesc)
}

// Sections returns the sections the flow was opened with.
func (f *ConfirmFlow) Sections() []models.Section {
	return append([]models.Section(nil), f.sections...)
}

// Submit subscribes to the sections. On success the flow closes and the
// selection is cleared; on failure both stay as they are so the user can
// retry. If the session has ended nothing is posted and the flow goes back
// to the authenticate step with a fresh sign-in.
func (f *ConfirmFlow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepConfirmAlerts {
		step := f.step
		f.mu.Unlock()
		if step == StepClosed {
			return ErrClosed
		}
		return wrongStep(step)
	}
	f.mu.Unlock()

	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.busy.Store(false)

	if _, ok := f.login.Session.User(); !ok {
		f.login.Log.Info(ctx, "session ended before subscribing, signing in again")
		f.switchAuth(NewLoginFlow(f.login, f.authenticated))
		return &StepError{Message: SessionExpiredMessage, Err: ErrSignedOut}
	}

	_, err := f.api.CreateSubscriptions(ctx, f.term.Term, models.CRNs(f.sections))

	f.mu.Lock()
	if f.step == StepClosed {
		f.mu.Unlock()
		f.login.Log.Info(ctx, "subscription finished after the confirmation was closed", "error", err)
		return ErrClosed
	}
	if err != nil {
		f.mu.Unlock()
		f.login.Log.Warn(ctx, "create subscriptions", "term", f.term.Term, "error", err)
		msg := client.Detail(err, "")
		f.notifier.Notify(Toast{Kind: ToastError, Title: "Error", Description: msg})
		return &StepError{Message: msg, Err: err}
	}
	f.step = StepClosed
	f.mu.Unlock()

	f.notifier.Notify(Toast{Kind: ToastSuccess, Title: "Success", Description: "You've successfully signed up for alerts!"})
	if f.clearer != nil {
		f.clearer.Clear()
	}
	return nil
}

// UseDifferentEmail signs the current user out and starts over at the
// authenticate step. Submit is refused while the switch is under way.
func (f *ConfirmFlow) UseDifferentEmail(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepConfirmAlerts {
		step := f.step
		f.mu.Unlock()
		return wrongStep(step)
	}
	f.mu.Unlock()

	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.busy.Store(false)

	err := f.login.Session.Logout(ctx)

	// NewLoginFlow may call back into f, so it runs unlocked.
	f.switchAuth(NewLoginFlow(f.login, f.authenticated))
	return err
}

// switchAuth installs auth as the sign-in flow and closes the one it
// replaces. The step only moves to authenticate when auth still needs
// input.
func (f *ConfirmFlow) switchAuth(auth *LoginFlow) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step == StepClosed {
		auth.Close()
		return
	}
	if f.auth != nil && f.auth != auth {
		f.auth.Close()
	}
	f.auth = auth
	if auth.Step() != StepComplete {
		f.step = StepAuthenticate
	}
}

// Close dismisses the confirmation. The selection is kept so the user can
// reopen it.
func (f *ConfirmFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.auth != nil {
		f.auth.Close()
	}
	f.step = StepClosed
}
