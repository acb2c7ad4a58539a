package client

import (
	"context"

	"github.com/kz4killua/course-alerts/internal/client/models"
)

// Client is the backend API as seen by the client. Every call returns
// ErrUnauthorized, ErrUnavailable or an *APIError on failure.
type Client interface {
	ListTerms(ctx context.Context, registrationOpen *bool) ([]models.Term, error)
	ListCourses(ctx context.Context, term, search string) ([]models.Course, error)
	ListSections(ctx context.Context, subjectCourse, term string) ([]models.Section, error)

	RequestSignIn(ctx context.Context, email string) error
	VerifySignIn(ctx context.Context, email, code string) (models.CredentialPair, error)
	RefreshToken(ctx context.Context, refresh string) (models.CredentialPair, error)
	VerifyToken(ctx context.Context, token string) error
	UpdatePhone(ctx context.Context, phone string) (models.User, error)
	GetProfile(ctx context.Context) (models.User, error)

	CreateSubscriptions(ctx context.Context, term string, crns []string) ([]models.Section, error)
	ListSubscriptions(ctx context.Context, term string) ([]models.Section, error)
	DeleteSubscriptions(ctx context.Context, term string, crns []string) error
}
