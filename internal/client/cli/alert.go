package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/kz4killua/course-alerts/internal/client/services"
)

// Alert confirms alerts for the selection, signing the user in first when
// needed. Backing out keeps the selection.
//
// The command needs a term and at least one selected section. The summary
// and the recipient address are shown before asking for "yes"; "email"
// signs out and restarts sign-in with another address. A successful
// subscription clears the selection. A failed one is toasted and asked
// again, and a session that ended in the meantime sends the user back
// through sign-in.
func (a *App) Alert(ctx context.Context) error {
	if a.term.Term == "" {
		return errNoTerm
	}

	flow, err := services.NewConfirmFlow(a.loginDeps(), a.api, a.notifier, a.term, a.selection.Sections(), a.selection)
	if errors.Is(err, services.ErrNoSections) {
		a.println("Select at least one section first.")
		return nil
	}
	if err != nil {
		return err
	}

	for {
		switch flow.Step() {
		case services.StepClosed:
			return nil

		case services.StepAuthenticate:
			login := flow.Login()
			if login == nil {
				continue
			}
			if err := a.driveLogin(ctx, login); err != nil {
				flow.Close()
				if errors.Is(err, errCancelled) {
					a.println("Cancelled. Your selection is kept.")
					return nil
				}
				return err
			}

		case services.StepConfirmAlerts:
			a.println(flow.Summary())
			for _, s := range flow.Sections() {
				a.printSection(s)
			}
			if u, ok := a.session.User(); ok {
				a.printf("Alerts will go to %s.\n", u.Email)
			}

			answer, err := GetSimpleText(a.reader,
				"Type 'yes' to confirm, 'email' to use a different email, anything else to cancel", a.out)
			if err != nil {
				flow.Close()
				return err
			}

			switch strings.ToLower(answer) {
			case "yes", "y":
				// Failures are toasted and leave the flow open for another try.
				err := flow.Submit(ctx)
				switch {
				case errors.Is(err, services.ErrSignedOut):
					a.println(err.Error())
				case err != nil && !a.isStepError(err):
					flow.Close()
					return err
				}
			case "email":
				if err := flow.UseDifferentEmail(ctx); err != nil {
					a.println(err.Error())
				}
			default:
				flow.Close()
				a.println("Cancelled. Your selection is kept.")
				return nil
			}
		}
	}
}

func (a *App) isStepError(err error) bool {
	var stepErr *services.StepError
	return errors.As(err, &stepErr)
}
