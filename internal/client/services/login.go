package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kz4killua/course-alerts/internal/client/client"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/logging"
)

// Step is a stage of the sign-in flow.
type Step int

const (
	StepDetermining Step = iota
	StepEnterEmail
	StepEnterCode
	StepEnterPhone
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepDetermining:
		return "determining"
	case StepEnterEmail:
		return "enter-email"
	case StepEnterCode:
		return "enter-code"
	case StepEnterPhone:
		return "enter-phone"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// loginTransitions lists every step reachable from a step. A transition
// missing here is a programming error. Phone entry falls back to email entry
// when the session is lost underneath it.
var loginTransitions = map[Step][]Step{
	StepDetermining: {StepEnterEmail, StepEnterPhone, StepComplete},
	StepEnterEmail:  {StepEnterCode},
	StepEnterCode:   {StepEnterEmail, StepEnterPhone, StepComplete},
	StepEnterPhone:  {StepEnterEmail, StepComplete},
	StepComplete:    nil,
}

func canMove(from, to Step) bool {
	for _, s := range loginTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Resend cool-downs.
const (
	FirstResendWait = 30 * time.Second
	ResendWait      = 60 * time.Second
)

// AuthAPI is the part of the backend the sign-in flow talks to.
type AuthAPI interface {
	RequestSignIn(ctx context.Context, email string) error
	VerifySignIn(ctx context.Context, email, code string) (models.CredentialPair, error)
	UpdatePhone(ctx context.Context, phone string) (models.User, error)
	GetProfile(ctx context.Context) (models.User, error)
}

// SessionState is the session as the flows see it.
type SessionState interface {
	User() (models.User, bool)
	Login(u models.User)
	Logout(ctx context.Context) error
}

// LoginDeps bundles what a LoginFlow needs. Now defaults to time.Now.
type LoginDeps struct {
	API     AuthAPI
	Tokens  tokens.Store
	Session SessionState
	Log     logging.Logger
	Now     func() time.Time
}

// LoginFlow takes a signed-out client to a session with a complete user.
// It resumes at the step matching the session it starts from. All methods
// are safe to call from several goroutines; at most one submit runs at a
// time.
type LoginFlow struct {
	deps       LoginDeps
	onComplete func(models.User)

	mu       sync.Mutex
	step     Step
	email    string
	resendAt time.Time
	closed   bool

	busy      atomic.Bool
	resending atomic.Bool
}

// NewLoginFlow starts a flow. When the session already holds a user with a
// phone number the flow completes immediately and onComplete runs before
// NewLoginFlow returns.
func NewLoginFlow(deps LoginDeps, onComplete func(models.User)) *LoginFlow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	f := &LoginFlow{deps: deps, onComplete: onComplete, step: StepDetermining}

	u, ok := deps.Session.User()
	switch {
	case !ok:
		f.move(StepEnterEmail)
	case u.NeedsPhone():
		f.move(StepEnterPhone)
	default:
		_ = f.complete(u)
	}
	return f
}

// Step returns the current step.
func (f *LoginFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Email returns the address the code was (or will be) sent to.
func (f *LoginFlow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Busy reports whether a submit is in flight.
func (f *LoginFlow) Busy() bool {
	return f.busy.Load()
}

// Close detaches the flow: results of calls still in flight update the
// stored credentials and the session, but no longer the flow itself.
func (f *LoginFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// SubmitEmail asks the backend to mail a one-time code to email.
func (f *LoginFlow) SubmitEmail(ctx context.Context, email string) error {
	if err := f.begin(StepEnterEmail); err != nil {
		return err
	}
	defer f.busy.Store(false)

	email = strings.TrimSpace(email)
	f.mu.Lock()
	f.email = email
	f.mu.Unlock()

	if err := validateInput(emailInput{Email: email}); err != nil {
		return err
	}

	if err := f.deps.API.RequestSignIn(ctx, email); err != nil {
		f.deps.Log.Warn(ctx, "request sign-in code", "email", logging.RedactEmail(email), "error", err)
		return &StepError{Message: client.Detail(err, ""), Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.resendAt = f.deps.Now().Add(FirstResendWait)
	return f.moveLocked(StepEnterCode)
}

// SubmitCode exchanges the mailed code for credentials, stores them and
// loads the profile into the session.
func (f *LoginFlow) SubmitCode(ctx context.Context, code string) error {
	if err := f.begin(StepEnterCode); err != nil {
		return err
	}
	defer f.busy.Store(false)

	code = strings.TrimSpace(code)
	if err := validateInput(codeInput{Code: code}); err != nil {
		return err
	}

	email := f.Email()
	pair, err := f.deps.API.VerifySignIn(ctx, email, code)
	if err != nil {
		return &StepError{Message: client.Detail(err, ""), Err: err}
	}

	if err := f.deps.Tokens.SetPair(ctx, pair); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}

	u, err := f.deps.API.GetProfile(ctx)
	if err != nil {
		return &StepError{Message: client.Detail(err, ""), Err: err}
	}
	f.deps.Session.Login(u)
	f.deps.Log.Info(ctx, "signed in", "email", logging.RedactEmail(u.Email))

	if u.NeedsPhone() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return ErrClosed
		}
		return f.moveLocked(StepEnterPhone)
	}
	return f.complete(u)
}

// ResendIn returns the whole seconds left before Resend is allowed. It is
// zero outside the code step.
func (f *LoginFlow) ResendIn() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendInLocked()
}

func (f *LoginFlow) resendInLocked() int {
	if f.step != StepEnterCode {
		return 0
	}
	left := f.resendAt.Sub(f.deps.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Resend mails a new code to the same address. It runs independently of
// SubmitCode and restarts a longer cool-down.
func (f *LoginFlow) Resend(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.closed:
		f.mu.Unlock()
		return ErrClosed
	case f.step != StepEnterCode:
		step := f.step
		f.mu.Unlock()
		return wrongStep(step)
	case f.resendInLocked() > 0:
		f.mu.Unlock()
		return ErrCooldown
	}
	email := f.email
	f.mu.Unlock()

	if !f.resending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.resending.Store(false)

	if err := f.deps.API.RequestSignIn(ctx, email); err != nil {
		return &StepError{Message: client.Detail(err, ""), Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.resendAt = f.deps.Now().Add(ResendWait)
	}
	return nil
}

// Back returns from the code step to email entry, keeping the address.
func (f *LoginFlow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.step != StepEnterCode {
		return wrongStep(f.step)
	}
	if f.busy.Load() {
		return ErrBusy
	}
	return f.moveLocked(StepEnterEmail)
}

// SubmitPhone attaches a ten-digit North-American number to the account.
// If the session has ended by then, the flow goes back to email entry.
func (f *LoginFlow) SubmitPhone(ctx context.Context, phone string) error {
	if err := f.begin(StepEnterPhone); err != nil {
		return err
	}
	defer f.busy.Store(false)

	phone = strings.TrimSpace(phone)
	if err := validateInput(phoneInput{Phone: phone}); err != nil {
		return err
	}

	if _, ok := f.deps.Session.User(); !ok {
		return f.signedOut(ctx, nil)
	}

	u, err := f.deps.API.UpdatePhone(ctx, "+1"+phone)
	if err != nil {
		// A rejected refresh logs the user out during the call.
		if _, ok := f.deps.Session.User(); !ok {
			return f.signedOut(ctx, err)
		}
		return &StepError{Message: client.Detail(err, ""), Err: err}
	}
	f.deps.Session.Login(u)

	return f.complete(u)
}

// SkipPhone completes without a phone number. No request is made. Without
// a signed-in user the flow goes back to email entry instead.
func (f *LoginFlow) SkipPhone() error {
	if err := f.begin(StepEnterPhone); err != nil {
		return err
	}
	defer f.busy.Store(false)

	u, ok := f.deps.Session.User()
	if !ok {
		return f.signedOut(context.Background(), nil)
	}
	return f.complete(u)
}

// signedOut restarts the flow at email entry, keeping the address, after
// the session was lost mid-flow. cause is the failed call, if any.
func (f *LoginFlow) signedOut(ctx context.Context, cause error) error {
	f.deps.Log.Info(ctx, "session ended during sign-in", "email", logging.RedactEmail(f.Email()), "error", cause)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := f.moveLocked(StepEnterEmail); err != nil {
		return err
	}
	return &StepError{Message: SessionExpiredMessage, Err: ErrSignedOut}
}

// begin claims the flow for one submit at step.
func (f *LoginFlow) begin(step Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.step != step {
		return wrongStep(f.step)
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (f *LoginFlow) move(to Step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.moveLocked(to); err != nil {
		panic(err)
	}
}

func (f *LoginFlow) moveLocked(to Step) error {
	if !canMove(f.step, to) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongStep, f.step, to)
	}
	f.step = to
	return nil
}

// complete moves to the terminal step and runs the callback outside the
// lock, so the callback may call back into the flow.
func (f *LoginFlow) complete(u models.User) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if err := f.moveLocked(StepComplete); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	if f.onComplete != nil {
		f.onComplete(u)
	}
	return nil
}
