package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/kz4killua/course-alerts/internal/client/client"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/logging"
)

// SubscriptionsAPI lists and removes the user's alert subscriptions.
type SubscriptionsAPI interface {
	ListSubscriptions(ctx context.Context, term string) ([]models.Section, error)
	DeleteSubscriptions(ctx context.Context, term string, crns []string) error
}

// Subscriptions manages the alerts the signed-in user receives.
type Subscriptions struct {
	api      SubscriptionsAPI
	notifier Notifier
	log      logging.Logger
}

func NewSubscriptions(api SubscriptionsAPI, notifier Notifier, log logging.Logger) *Subscriptions {
	return &Subscriptions{api: api, notifier: notifier, log: log}
}

// List returns the subscribed sections, of one term when term is set.
// Failures are logged and toasted as well as returned.
func (s *Subscriptions) List(ctx context.Context, term string) ([]models.Section, error) {
	sections, err := s.api.ListSubscriptions(ctx, term)
	if err != nil {
		s.log.Warn(ctx, "list subscriptions", "term", term, "error", err)
		s.notifier.Notify(Toast{Kind: ToastError, Title: "Error", Description: client.Detail(err, "")})
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return sections, nil
}

// Delete stops alerts for one section.
func (s *Subscriptions) Delete(ctx context.Context, section models.Section) error {
	err := s.api.DeleteSubscriptions(ctx, section.Term, []string{section.CourseReferenceNumber})
	if err != nil {
		s.log.Warn(ctx, "delete subscription", "crn", section.CourseReferenceNumber, "error", err)
		s.notifier.Notify(Toast{Kind: ToastError, Title: "Error", Description: client.Detail(err, "")})
		return fmt.Errorf("delete subscription %s: %w", section.CourseReferenceNumber, err)
	}

	s.notifier.Notify(Toast{
		Kind:        ToastSuccess,
		Title:       "Success",
		Description: "You will no longer receive alerts for this class.",
	})
	return nil
}

// FilterSections keeps the sections whose "course CRN" text contains query,
// ignoring case. An empty query keeps everything.
func FilterSections(sections []models.Section, query string) []models.Section {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sections
	}

	var out []models.Section
	for _, s := range sections {
		text := strings.ToLower(s.Course + " " + s.CourseReferenceNumber)
		if strings.Contains(text, q) {
			out = append(out, s)
		}
	}
	return out
}

// DescribeSubscriptions is the one-line summary shown above the list.
func DescribeSubscriptions(n int) string {
	return fmt.Sprintf("You are currently receiving alerts for %s.", models.Plural(n, "class", "classes"))
}
