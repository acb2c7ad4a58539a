package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/services"
)

// Subscriptions lists the alerts of the current term, or of every term when
// none is chosen.
//
// Any arguments form a filter matched against "course CRN", ignoring case;
// the summary line always counts every subscription. The listing is cached
// for Unsubscribe. A failed listing has already been shown as a toast, so it
// is not reported again.
func (a *App) Subscriptions(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		return errNotSignedIn
	}

	sections, err := a.subs.List(ctx, a.term.Term)
	if err != nil {
		// Already shown as a toast.
		return nil
	}
	a.setSubscribed(sections)

	a.println(services.DescribeSubscriptions(len(sections)))
	for _, s := range services.FilterSections(sections, strings.Join(args, " ")) {
		a.printf("  %-6s %-10s %-11s %-4s %s\n",
			s.CourseReferenceNumber, s.Course, s.ScheduleTypeDescription, s.SequenceNumber, s.TermDesc)
	}
	return nil
}

// Unsubscribe stops alerts for one section.
//
// The CRN is looked up in the last subscriptions listing, which is fetched
// first when there is none (or it was dropped by a term change or logout).
// On success the section leaves the cached listing; the result is shown as
// a toast either way.
func (a *App) Unsubscribe(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		return errNotSignedIn
	}
	if len(args) != 1 {
		return errors.New("usage: unsubscribe <crn>")
	}

	subscribed := a.cachedSubscribed()
	if subscribed == nil {
		sections, err := a.subs.List(ctx, a.term.Term)
		if err != nil {
			return nil
		}
		subscribed = sections
		a.setSubscribed(subscribed)
	}

	s, ok := findSection(subscribed, args[0])
	if !ok {
		return fmt.Errorf("you have no alert for section %s", args[0])
	}
	if err := a.subs.Delete(ctx, s); err != nil {
		return nil
	}

	kept := make([]models.Section, 0, len(subscribed))
	for _, sub := range subscribed {
		if sub.CourseReferenceNumber != s.CourseReferenceNumber {
			kept = append(kept, sub)
		}
	}
	a.setSubscribed(kept)
	return nil
}
