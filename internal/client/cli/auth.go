package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kz4killua/course-alerts/internal/client/services"
)

var (
	errCancelled   = errors.New("cancelled")
	errNotSignedIn = errors.New("sign in first with 'login'")
)

// Login signs the user in, or finishes a sign-in that still lacks a phone
// number.
//
// A user who is already signed in with a phone number is told so and
// nothing is sent. Otherwise the email, code and phone prompts of a
// LoginFlow are driven by driveLogin; typing "cancel" at any prompt backs
// out and returns nil. Input and server errors are shown at the prompt that
// caused them and do not end the command.
func (a *App) Login(ctx context.Context) error {
	if u, ok := a.session.User(); ok && !u.NeedsPhone() {
		a.printf("Already signed in as %s.\n", u.Email)
		return nil
	}

	f := services.NewLoginFlow(a.loginDeps(), nil)
	if err := a.driveLogin(ctx, f); err != nil {
		if errors.Is(err, errCancelled) {
			a.println("Sign-in cancelled.")
			return nil
		}
		return err
	}

	if u, ok := a.session.User(); ok {
		a.printf("Signed in as %s.\n", u.Email)
	}
	return nil
}

// driveLogin prompts for each step of f until it completes. Input errors
// are shown and the step is asked again; anything else closes f.
func (a *App) driveLogin(ctx context.Context, f *services.LoginFlow) error {
	for {
		var err error

		switch step := f.Step(); step {
		case services.StepComplete:
			return nil

		case services.StepEnterEmail:
			var email string
			email, err = GetSimpleText(a.reader, "Email address ('cancel' to stop)", a.out)
			if err != nil {
				f.Close()
				return err
			}
			if strings.EqualFold(email, "cancel") {
				f.Close()
				return errCancelled
			}
			if err = f.SubmitEmail(ctx, email); err == nil {
				a.printf("We sent a 6-digit code to %s.\n", email)
			}

		case services.StepEnterCode:
			var code string
			prompt := fmt.Sprintf("Code sent to %s ('resend', 'back' or 'cancel')", f.Email())
			code, err = GetCode(a.reader, prompt, a.out, a.hideCode)
			if err != nil {
				f.Close()
				return err
			}
			switch strings.ToLower(code) {
			case "cancel":
				f.Close()
				return errCancelled
			case "back":
				err = f.Back()
			case "resend":
				if err = f.Resend(ctx); err == nil {
					a.println("A new code is on its way.")
				} else if errors.Is(err, services.ErrCooldown) {
					a.printf("You can resend the code in %d seconds.\n", f.ResendIn())
					err = nil
				}
			default:
				err = f.SubmitCode(ctx, code)
			}

		case services.StepEnterPhone:
			var phone string
			phone, err = GetSimpleText(a.reader,
				"Phone number for text alerts, 10 digits without +1 (empty to skip, 'cancel' to stop)", a.out)
			if err != nil {
				f.Close()
				return err
			}
			switch {
			case strings.EqualFold(phone, "cancel"):
				f.Close()
				return errCancelled
			case phone == "":
				err = f.SkipPhone()
			default:
				err = f.SubmitPhone(ctx, phone)
			}

		default:
			f.Close()
			return fmt.Errorf("sign-in stopped at step %s", step)
		}

		if err != nil && !a.showRecoverable(err) {
			f.Close()
			return err
		}
	}
}

// showRecoverable prints errors the user can fix by trying again and
// reports whether err was one of them.
func (a *App) showRecoverable(err error) bool {
	var stepErr *services.StepError
	var valErr *services.ValidationError

	switch {
	case errors.As(err, &valErr), errors.As(err, &stepErr):
		a.println(err.Error())
		return true
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrWrongStep):
		a.println(err.Error())
		return true
	default:
		return false
	}
}

// Logout clears the stored credentials. The session listener prints the
// confirmation.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.println("You are not signed in.")
		return nil
	}
	return a.session.Logout(ctx)
}

// WhoAmI prints the signed-in account's email and phone number with their
// verification state. It returns errNotSignedIn without a session.
func (a *App) WhoAmI(context.Context) error {
	u, ok := a.session.User()
	if !ok {
		return errNotSignedIn
	}

	phone := u.Phone
	if phone == "" {
		phone = "(none)"
	}
	a.printf("Email: %s (verified: %t)\n", u.Email, u.EmailVerified)
	a.printf("Phone: %s (verified: %t)\n", phone, u.PhoneVerified)
	return nil
}
